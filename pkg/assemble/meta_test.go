package assemble

import (
	"strings"
	"testing"
)

func TestAbPartitionList(t *testing.T) {
	stems := []string{"vendor", "boot", "cust", "system", "dtbo"}
	names := abPartitionList(stems)

	joined := strings.Join(names, ",")
	if joined != "boot,dtbo,system,vendor" {
		t.Errorf("abPartitionList = %q, want sorted list without cust", joined)
	}
}

func TestAbPartitionsContent(t *testing.T) {
	content := abPartitionsContent([]string{"boot", "system"})
	if content != "boot\nsystem\n" {
		t.Errorf("abPartitionsContent = %q", content)
	}
}

func TestDynamicPartitionsInfo(t *testing.T) {
	names := []string{"boot", "mi_ext", "system", "vendor", "xbl"}
	content := dynamicPartitionsInfo(9126805504, names)

	for _, want := range []string{
		"super_partition_size=9126805504\n",
		"super_partition_groups=qti_dynamic_partitions\n",
		"super_qti_dynamic_partitions_group_size=9125756928\n",
		"super_qti_dynamic_partitions_partition_list=mi_ext system vendor\n",
		"virtual_ab=true\n",
		"virtual_ab_compression=true\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("dynamic_partitions_info missing %q:\n%s", want, content)
		}
	}
}

func TestFixedMetaContents(t *testing.T) {
	if got := miscInfoContent(); got != "recovery_api_version=3\nfstab_version=2\nab_update=true\n" {
		t.Errorf("misc_info = %q", got)
	}
	if got := updateEngineConfigContent(); got != "PAYLOAD_MAJOR_VERSION=2\nPAYLOAD_MINOR_VERSION=8\n" {
		t.Errorf("update_engine_config = %q", got)
	}
}
