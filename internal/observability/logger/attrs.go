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

package logger

import (
	"log/slog"
	"time"
)

// Attribute keys shared by every component. Dashboards query on these names.
const (
	KeyRequestID   = "request_id"
	KeyPrincipalID = "principal_id"
	KeySessionID   = "session_id"
	KeyRole        = "role"
	KeyOutcome     = "outcome"
	KeyCode        = "code"
	KeyProcess     = "process"
	KeyVariant     = "variant"
)

// HTTP request
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }
func Method(method string) slog.Attr { return slog.String("method", method) }
func Path(path string) slog.Attr { return slog.String("path", path) }
func RemoteAddr(addr string) slog.Attr { return slog.String("remote_addr", addr) }
func UserAgent(ua string) slog.Attr { return slog.String("user_agent", ua) }
func StatusCode(code int) slog.Attr { return slog.Int("status_code", code) }

// Duration is logged in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64("duration_ms", d.Milliseconds())
}

// Principal and session
func PrincipalID(id string) slog.Attr { return slog.String(KeyPrincipalID, id) }
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }
func Role(role string) slog.Attr { return slog.String(KeyRole, role) }

// Access decisions
func Outcome(kind string) slog.Attr { return slog.String(KeyOutcome, kind) }
func Code(code string) slog.Attr { return slog.String(KeyCode, code) }
func Process(p string) slog.Attr { return slog.String(KeyProcess, p) }
func Variant(v string) slog.Attr { return slog.String(KeyVariant, v) }

// Error records a nil error as an empty string so the key is always present.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func RowsAffected(rows int64) slog.Attr { return slog.Int64("rows_affected", rows) }
func Component(name string) slog.Attr { return slog.String("component", name) }
func Operation(op string) slog.Attr { return slog.String("operation", op) }

// String creates a generic string attribute
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}
