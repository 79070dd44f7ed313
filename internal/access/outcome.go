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

import (
	"net/http"
	"net/url"

	"github.com/opentrusty/staffgate/internal/directory"
	"github.com/opentrusty/staffgate/internal/process"
	"github.com/opentrusty/staffgate/internal/route"
)

// Kind discriminates an Outcome.
type Kind int

const (
	Allow Kind = iota
	Redirect
	Status
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Status:
		return "status"
	}
	return "unknown"
}

// Outcome is what the route layer must do with the request. Target is set
// for Redirect, Status for Status. ClearSession asks the caller to drop the
// session cookie whatever the kind.
type Outcome struct {
	Kind         Kind
	Target       string
	Status       int
	Code         string
	ClearSession bool
	Err          error
}

// Allowed reports whether the request may proceed.
func (o Outcome) Allowed() bool {
	return o.Kind == Allow
}

func allow() Outcome {
	return Outcome{Kind: Allow}
}

func redirectTo(target string, err error, code string) Outcome {
	return Outcome{Kind: Redirect, Target: target, Code: code, Err: err}
}

func withStatus(status int, err error, code string) Outcome {
	return Outcome{Kind: Status, Status: status, Code: code, Err: err}
}

// deny redirects browser navigation and answers API calls with status.
func deny(c route.Classification, target string, status int, err error, code string) Outcome {
	if c.API {
		return withStatus(status, err, code)
	}
	return redirectTo(target, err, code)
}

func withQuery(p, key, value string) string {
	return p + "?" + url.Values{key: {value}}.Encode()
}

func loginRedirect(t *route.Table, c route.Classification) Outcome {
	return deny(c, withQuery(t.LoginPath, "redirectTo", c.Path), http.StatusUnauthorized, ErrUnauthenticated, CodeUnauthenticated)
}

func upstreamFailure(err error) Outcome {
	return Outcome{
		Kind:   Status,
		Status: http.StatusServiceUnavailable,
		Code:   CodeUpstreamUnavailable,
		Err:    err,
	}
}

// Request is the access-relevant view of an inbound request.
type Request struct {
	Method       string
	Path         string
	SessionToken string
	IPAddress    string
	UserAgent    string
	// CompanyID is the company the request acts within, when any.
	CompanyID string
}

// Decision is the result of Evaluate. Principal is nil for anonymous
// requests and for identities that were rejected.
type Decision struct {
	Outcome      Outcome
	Principal    *directory.Principal
	Route        route.Classification
	ProcessState process.State
}
