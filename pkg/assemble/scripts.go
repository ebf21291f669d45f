package assemble

import (
	"fmt"
	"strings"

	"porttools/pkg/firmware"
	"porttools/pkg/romfacts"
)

// ScriptStyle selects the command dialect emitted into a flashing script.
type ScriptStyle int

const (
	// StyleShell is the desktop shell script (fastboot).
	StyleShell ScriptStyle = iota
	// StyleBatch is the Windows batch script (bundled fastboot.exe).
	StyleBatch
	// StyleRecovery is the recovery update program (package_extract_file).
	StyleRecovery
)

func (s ScriptStyle) marker() string {
	if s == StyleBatch {
		return "REM firmware"
	}
	return "# firmware"
}

// SubstitutePlaceholders replaces the template tokens in a flashing script
// with the real device facts.
func SubstitutePlaceholders(content string, facts romfacts.Facts) string {
	replacer := strings.NewReplacer(
		"device_code", facts.DeviceCode,
		"baseversion", facts.BaseAndroidVersion,
		"portversion", facts.TargetVersion,
	)
	return replacer.Replace(content)
}

// StripSlotSuffixes rewrites a desktop script for an A-only device: slot
// qualifiers are dropped and any line still naming the unused b slot is
// removed entirely.
func StripSlotSuffixes(content string) string {
	content = strings.ReplaceAll(content, "_a", "")
	content = strings.ReplaceAll(content, "_b", "")

	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "_b") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// PatchRecoveryAOnly rewrites the recovery update program for an A-only
// device: boot and dtbo lose their slot suffix, the slot-activation call
// goes away and the dynamic-partition unmap lines used by virtual A/B are
// dropped.
func PatchRecoveryAOnly(content string) string {
	replacer := strings.NewReplacer(
		"boot_a", "boot",
		"boot_b", "boot",
		"dtbo_a", "dtbo",
		"dtbo_b", "dtbo",
		"bootctl set-active-boot-slot a", "",
	)
	content = replacer.Replace(content)

	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "lptools unmap") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// FirmwareCommands builds the flash commands for the given firmware file
// names. Seamless-update devices flash both slots; A-only devices flash the
// bare partition. Files without a flash target (boot, dtbo, cust) produce
// nothing.
func FirmwareCommands(files []string, isAB bool, style ScriptStyle) []string {
	var commands []string
	for _, file := range files {
		partition, ok := firmware.PartitionFor(file)
		if !ok {
			continue
		}

		if isAB {
			commands = append(commands,
				flashCommand(style, partition+"_a", file),
				flashCommand(style, partition+"_b", file))
		} else {
			commands = append(commands, flashCommand(style, partition, file))
		}
	}
	return commands
}

func flashCommand(style ScriptStyle, partition, file string) string {
	switch style {
	case StyleBatch:
		return fmt.Sprintf(`bin\windows\fastboot.exe flash %s %%~dp0firmware-update\%s`, partition, file)
	case StyleRecovery:
		return fmt.Sprintf(`package_extract_file "firmware-update/%s" "/dev/block/bootdevice/by-name/%s"`, file, partition)
	default:
		return fmt.Sprintf("fastboot flash %s firmware-update/%s", partition, file)
	}
}

// InjectFirmwareCommands inserts the firmware flash commands after the
// style's marker comment. ok is false when the marker is missing from the
// script; the caller logs and moves on, the script is left untouched.
func InjectFirmwareCommands(content string, files []string, isAB bool, style ScriptStyle) (string, bool) {
	commands := FirmwareCommands(files, isAB, style)
	if len(commands) == 0 {
		return content, true
	}

	marker := style.marker()
	before, after, found := strings.Cut(content, marker)
	if !found {
		return content, false
	}

	return before + marker + "\n" + strings.Join(commands, "\n") + after, true
}
