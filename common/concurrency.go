package common

import (
	"log"
	"os"
	"strconv"
)

// ComputeConcurrencyValue picks the daemon's default job concurrency from the machine's
// CPU count, honoring COPYD_CONCURRENCY_VALUE as an override. copyd's transfers are
// kernel-assisted (copy_file_range/sendfile/reflink), not goroutine-per-chunk the way a
// network transfer engine would be, so this bounds concurrent *jobs*, not per-file workers.
func ComputeConcurrencyValue(numOfCPUs int) int {
	concurrencyValueOverride := os.Getenv("COPYD_CONCURRENCY_VALUE")
	if concurrencyValueOverride != "" {
		val, err := strconv.ParseInt(concurrencyValueOverride, 10, 64)
		if err != nil {
			log.Fatalf("error parsing the env COPYD_CONCURRENCY_VALUE %q failed with error %v",
				concurrencyValueOverride, err)
		}
		return int(val)
	}

	// one concurrent job per logical CPU
	return numOfCPUs
}
