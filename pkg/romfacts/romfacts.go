// Package romfacts carries the ROM-derived facts the packaging pipeline
// consumes: device identity, version strings and the A/B capability flag.
// The facts are produced by the extraction stage and read-only here.
package romfacts

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

type Facts struct {
	// DeviceCode is the vendor code name of the target device (e.g. "marble").
	DeviceCode string `mapstructure:"device_code" yaml:"device_code"`

	// BaseAndroidVersion is the Android release of the base (vendor) ROM.
	BaseAndroidVersion string `mapstructure:"base_android_version" yaml:"base_android_version"`

	// PortAndroidVersion is the Android release of the ported system ROM.
	PortAndroidVersion string `mapstructure:"port_android_version" yaml:"port_android_version"`

	// BaseIncremental is the base ROM's incremental version (vendor build).
	BaseIncremental string `mapstructure:"base_incremental" yaml:"base_incremental"`

	// PortIncremental is the ported ROM's incremental version.
	PortIncremental string `mapstructure:"port_incremental" yaml:"port_incremental"`

	// TargetVersion is the version string stamped on the final package.
	// Left empty by the extraction stage, it is derived from the
	// incrementals via DeriveTargetVersion.
	TargetVersion string `mapstructure:"target_version" yaml:"target_version"`

	// IsAB reports whether the device uses seamless (virtual A/B) updates.
	IsAB bool `mapstructure:"is_ab" yaml:"is_ab"`
}

// Normalize fills in derived fields. A missing TargetVersion is computed
// from the incremental versions.
func (f *Facts) Normalize() {
	if f.TargetVersion == "" && f.PortIncremental != "" {
		f.TargetVersion = DeriveTargetVersion(f.BaseIncremental, f.PortIncremental, f.PortAndroidVersion)
	}
}

// DeriveTargetVersion computes the version string for the assembled package
// from the base ROM's incremental version and the port ROM's incremental
// version. The fifth dot-segment of the incremental encodes the device code;
// the port's segment is swapped for the base's, re-prefixed with the letter
// of the port's Android release. DEV builds are left untouched since their
// incremental does not follow the release scheme.
func DeriveTargetVersion(baseIncremental, portIncremental, portAndroidVersion string) string {
	if strings.Contains(portIncremental, "DEV") {
		log.Warn("Dev ROM detected, skipping codename replacement")
		return portIncremental
	}

	portSegment := incrementalSegment(portIncremental)
	if portSegment == "" {
		return portIncremental
	}

	baseSegment := incrementalSegment(baseIncremental)
	if baseSegment == "" {
		return portIncremental
	}

	prefix := releaseLetter(portAndroidVersion)
	replacement := prefix + baseSegment[1:]
	return strings.Replace(portIncremental, portSegment, replacement, 1)
}

// incrementalSegment returns the device-code segment of an incremental
// version like "1.0.5.0.UMCCNXM", or "" if the string is too short.
func incrementalSegment(incremental string) string {
	parts := strings.Split(incremental, ".")
	if len(parts) < 5 {
		return ""
	}
	return parts[4]
}

func releaseLetter(androidVersion string) string {
	switch androidVersion {
	case "15":
		return "V"
	case "16":
		return "W"
	default:
		return "U"
	}
}
