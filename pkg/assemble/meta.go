package assemble

import (
	"fmt"
	"sort"
	"strings"

	"porttools/pkg/superimage"
)

// otaGroupReserve is held back from the group budget for dynamic partition
// metadata.
const otaGroupReserve = 1 << 20

// abPartitionList returns the sorted partition names for ab_partitions.txt.
// cust is carried in the images folder but is not an updatable partition.
func abPartitionList(imageStems []string) []string {
	var names []string
	for _, stem := range imageStems {
		if stem == "cust" {
			continue
		}
		names = append(names, stem)
	}
	sort.Strings(names)
	return names
}

func abPartitionsContent(names []string) string {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s\n", name)
	}
	return b.String()
}

// dynamicPartitionsInfo renders META/dynamic_partitions_info.txt. The group
// budget is the container size minus a fixed reserve; members are the super
// partitions actually present, space-delimited in list order.
func dynamicPartitionsInfo(superSize int64, partitionNames []string) string {
	members := superMembers(partitionNames)

	var b strings.Builder
	fmt.Fprintf(&b, "super_partition_size=%d\n", superSize)
	fmt.Fprintf(&b, "super_partition_groups=qti_dynamic_partitions\n")
	fmt.Fprintf(&b, "super_qti_dynamic_partitions_group_size=%d\n", superSize-otaGroupReserve)
	fmt.Fprintf(&b, "super_qti_dynamic_partitions_partition_list=%s\n", strings.Join(members, " "))
	fmt.Fprintf(&b, "virtual_ab=true\n")
	fmt.Fprintf(&b, "virtual_ab_compression=true\n")
	return b.String()
}

// superMembers filters names down to composable super partitions, preserving
// input order.
func superMembers(names []string) []string {
	candidates := map[string]bool{}
	for _, c := range superimage.MemberCandidates() {
		candidates[c] = true
	}

	var members []string
	for _, name := range names {
		if candidates[name] {
			members = append(members, name)
		}
	}
	return members
}

func miscInfoContent() string {
	return "recovery_api_version=3\n" +
		"fstab_version=2\n" +
		"ab_update=true\n"
}

func updateEngineConfigContent() string {
	return "PAYLOAD_MAJOR_VERSION=2\n" +
		"PAYLOAD_MINOR_VERSION=8\n"
}
