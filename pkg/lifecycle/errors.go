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

package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is reported when an operation needs an active module that
	// is not in the registry.
	ErrNotActive = errors.New("lifecycle: module not found in active list")
	// ErrResolutionFailed matches every *ResolutionError.
	ErrResolutionFailed = errors.New("lifecycle: module resolution failed")
	// ErrOperationFailed matches every *OperationError.
	ErrOperationFailed = errors.New("lifecycle: module operation failed")
)

// ResolutionError is returned when a module could not be loaded or
// instantiated.
type ResolutionError struct {
	Module string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not create %s: %v", e.Module, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolutionFailed }

// OperationError is reported when a module capability failed or panicked.
type OperationError struct {
	Module    string
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Module, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func (e *OperationError) Is(target error) bool { return target == ErrOperationFailed }
