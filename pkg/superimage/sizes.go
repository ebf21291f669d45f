package superimage

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// defaultSuperSize covers devices not in the table below. The on-device
// flashing scripts size-check the container against the physical partition,
// so these values must match the factory partition tables exactly.
const defaultSuperSize int64 = 9126805504

var superSizes = map[string]int64{
	// Xiaomi 13 series / Note 12 Turbo / K60 Pro / MIX Fold 3
	"FUXI":     9663676416,
	"NUWA":     9663676416,
	"ISHTAR":   9663676416,
	"MARBLE":   9663676416,
	"SOCRATES": 9663676416,
	"BABYLON":  9663676416,

	// Redmi Note 12 5G
	"SUNSTONE": 9122611200,

	// Pad 6 Max
	"YUDI": 11811160064,
}

// SuperSize returns the super container byte size for a device code. Unknown
// devices get the documented default, never zero.
func SuperSize(deviceCode string) int64 {
	code := strings.ToUpper(deviceCode)
	if size, ok := superSizes[code]; ok {
		log.WithField("device", code).WithField("size", size).Info("Matched known device super size")
		return size
	}
	log.WithField("device", code).WithField("size", defaultSuperSize).Info("Device not in size table, using default super size")
	return defaultSuperSize
}

// memberCandidates lists every partition that may live inside the dynamic
// volume, in declaration order.
var memberCandidates = []string{
	"odm", "mi_ext", "system", "system_ext", "product", "vendor",
	"odm_dlkm", "vendor_dlkm", "system_dlkm", "product_dlkm",
}

// dynamicPartitionSet additionally includes cust, which some factory images
// place inside super even though we never compose it ourselves.
var dynamicPartitionSet = append(append([]string{}, memberCandidates...), "cust")

// IsDynamicPartition reports whether a partition belongs to the dynamic
// volume's partition set. The hybrid assembler uses this to drop standalone
// images made redundant by a composed super container.
func IsDynamicPartition(name string) bool {
	for _, p := range dynamicPartitionSet {
		if p == name {
			return true
		}
	}
	return false
}

// MemberCandidates returns the composable partition names in declaration
// order.
func MemberCandidates() []string {
	return append([]string{}, memberCandidates...)
}
