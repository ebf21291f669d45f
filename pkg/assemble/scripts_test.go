package assemble

import (
	"strings"
	"testing"

	"porttools/pkg/romfacts"
)

var testFacts = romfacts.Facts{
	DeviceCode:         "marble",
	BaseAndroidVersion: "14",
	PortAndroidVersion: "15",
	TargetVersion:      "OS2.0.5.0.VMCCNXM",
	IsAB:               true,
}

func TestSubstitutePlaceholders(t *testing.T) {
	script := "echo Flashing device_code\necho base baseversion -> portversion\n"
	got := SubstitutePlaceholders(script, testFacts)

	want := "echo Flashing marble\necho base 14 -> OS2.0.5.0.VMCCNXM\n"
	if got != want {
		t.Errorf("SubstitutePlaceholders = %q, want %q", got, want)
	}
}

func TestStripSlotSuffixes(t *testing.T) {
	script := strings.Join([]string{
		"fastboot flash boot_a images/boot.img",
		"fastboot flash boot_b images/boot.img",
		"fastboot flash vbmeta images/vbmeta.img",
	}, "\n")

	got := StripSlotSuffixes(script)

	if strings.Contains(got, "_a") || strings.Contains(got, "_b") {
		t.Errorf("slot suffixes survive: %q", got)
	}
	if !strings.Contains(got, "fastboot flash boot images/boot.img") {
		t.Errorf("boot flash line lost: %q", got)
	}
	if !strings.Contains(got, "fastboot flash vbmeta images/vbmeta.img") {
		t.Errorf("slotless line damaged: %q", got)
	}
}

func TestPatchRecoveryAOnly(t *testing.T) {
	script := strings.Join([]string{
		`package_extract_file "boot.img" "/dev/block/bootdevice/by-name/boot_a"`,
		`package_extract_file "dtbo.img" "/dev/block/bootdevice/by-name/dtbo_b"`,
		"bootctl set-active-boot-slot a",
		"lptools unmap system_b",
		"echo done",
	}, "\n")

	got := PatchRecoveryAOnly(script)

	if strings.Contains(got, "boot_a") || strings.Contains(got, "dtbo_b") {
		t.Errorf("boot-class slot names survive: %q", got)
	}
	if strings.Contains(got, "set-active-boot-slot") {
		t.Errorf("slot activation survives: %q", got)
	}
	if strings.Contains(got, "lptools unmap") {
		t.Errorf("unmap line survives: %q", got)
	}
	if !strings.Contains(got, "echo done") {
		t.Errorf("unrelated line lost: %q", got)
	}
}

func TestFirmwareCommands(t *testing.T) {
	files := []string{"BTFM.bin", "boot.img", "dtbo.img", "xbl.img"}

	tests := []struct {
		name  string
		isAB  bool
		style ScriptStyle
		want  []string
		never []string
	}{
		{
			name:  "recovery AB flashes both slots",
			isAB:  true,
			style: StyleRecovery,
			want: []string{
				`package_extract_file "firmware-update/BTFM.bin" "/dev/block/bootdevice/by-name/bluetooth_a"`,
				`package_extract_file "firmware-update/BTFM.bin" "/dev/block/bootdevice/by-name/bluetooth_b"`,
				`package_extract_file "firmware-update/xbl.img" "/dev/block/bootdevice/by-name/xbl_a"`,
			},
			never: []string{"boot.img", "dtbo"},
		},
		{
			name:  "shell A-only flashes bare partition",
			isAB:  false,
			style: StyleShell,
			want: []string{
				"fastboot flash bluetooth firmware-update/BTFM.bin",
				"fastboot flash xbl firmware-update/xbl.img",
			},
			never: []string{"bluetooth_a", "boot.img"},
		},
		{
			name:  "batch uses bundled fastboot",
			isAB:  false,
			style: StyleBatch,
			want: []string{
				`bin\windows\fastboot.exe flash bluetooth %~dp0firmware-update\BTFM.bin`,
			},
			never: []string{"boot.img"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			joined := strings.Join(FirmwareCommands(files, tc.isAB, tc.style), "\n")
			for _, want := range tc.want {
				if !strings.Contains(joined, want) {
					t.Errorf("missing command %q in:\n%s", want, joined)
				}
			}
			for _, never := range tc.never {
				if strings.Contains(joined, never) {
					t.Errorf("unexpected %q in:\n%s", never, joined)
				}
			}
		})
	}
}

func TestInjectFirmwareCommands(t *testing.T) {
	script := "#!/sbin/sh\n# firmware\n# super\n"

	got, ok := InjectFirmwareCommands(script, []string{"BTFM.bin"}, true, StyleRecovery)
	if !ok {
		t.Fatal("marker present but injection reported failure")
	}

	idx := strings.Index(got, "# firmware")
	cmd := strings.Index(got, "bluetooth_a")
	super := strings.Index(got, "# super")
	if !(idx < cmd && cmd < super) {
		t.Errorf("commands not injected after marker:\n%s", got)
	}
}

func TestInjectFirmwareCommandsMissingMarker(t *testing.T) {
	script := "#!/sbin/sh\necho hi\n"

	got, ok := InjectFirmwareCommands(script, []string{"BTFM.bin"}, false, StyleShell)
	if ok {
		t.Error("missing marker must be reported")
	}
	if got != script {
		t.Errorf("script modified despite missing marker: %q", got)
	}
}

func TestInjectFirmwareCommandsNothingToFlash(t *testing.T) {
	script := "#!/sbin/sh\n"

	// Only excluded files: the script is untouched and that is not an error.
	got, ok := InjectFirmwareCommands(script, []string{"boot.img", "dtbo.img"}, true, StyleRecovery)
	if !ok || got != script {
		t.Errorf("expected untouched script, got ok=%v content=%q", ok, got)
	}
}
