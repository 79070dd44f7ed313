// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package access

import "errors"

// Denial taxonomy. Outcome.Err carries one of these; clients only ever see
// the matching Code.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInactiveAccount        = errors.New("account inactive")
	ErrOrphanedIdentity       = errors.New("identity has no directory record")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrProcessNotSelected     = errors.New("process not selected")
	ErrProcessSelectionDenied = errors.New("process access denied")
	ErrRateLimited            = errors.New("rate limit exceeded")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
)

// Error codes returned to clients.
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeAccountInactive     = "account_inactive"
	CodeInsufficient        = "insufficient_permissions"
	CodeProcessNotSelected  = "process_not_selected"
	CodeProcessDenied       = "process_access_denied"
	CodeAccessDenied        = "access_denied"
	CodeRateLimited         = "rate_limited"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeAccountLocked       = "account_locked"
	CodeInvalidProcess      = "invalid_process"
)

// Audit reasons.
const (
	reasonDirectoryMiss   = "directory lookup miss"
	reasonInactive        = "inactive account"
	reasonInsufficient    = "insufficient permissions"
	reasonNoProcess       = "no process access"
	reasonProcessDenied   = "process not permitted"
	reasonRateLimited     = "rate limit exceeded"
	reasonBadCredentials  = "invalid credentials"
	reasonAccountLocked   = "account locked"
	reasonProcessRejected = "process selection rejected"
)
