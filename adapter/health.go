/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package adapter

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryCheck fails once the host's used memory exceeds maxUsedPercent.
func MemoryCheck(maxUsedPercent float64) healthcheck.Check {
	return func() error {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return fmt.Errorf("read memory stats: %w", err)
		}
		if vm.UsedPercent > maxUsedPercent {
			return fmt.Errorf("memory used %.1f%% exceeds %.1f%%", vm.UsedPercent, maxUsedPercent)
		}
		return nil
	}
}
