// Package event parses webhook payloads and decides whether they deploy.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Forge header names. Gitea headers are checked first, the GitHub forms are
// accepted as a fallback so GitHub-hosted repositories work unchanged.
const (
	giteaEventHeader     = "X-Gitea-Event"
	giteaDeliveryHeader  = "X-Gitea-Delivery"
	githubEventHeader    = "X-GitHub-Event"
	githubDeliveryHeader = "X-GitHub-Delivery"
)

// EventTypePush is the only event type that triggers a build.
const EventTypePush = "push"

var (
	// ErrMalformedPayload reports a body that is not a JSON object.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrMissingRepoURL reports a payload without a usable repository URL.
	ErrMissingRepoURL = errors.New("payload has no repository URL")
)

// Event is the distilled view of one webhook delivery. It lives for the
// duration of a single request and is never persisted.
type Event struct {
	RepoURL  string
	Commit   string
	Ref      string
	Type     string
	Delivery string // informational only, carried into logs
}

type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		SSHURL   string `json:"ssh_url"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// Parse extracts an Event from the request body and headers.
//
// useSSH selects which repository URL field is consumed: repository.ssh_url
// when true, repository.clone_url otherwise. Malformed JSON and a missing
// repository URL fail closed before any filtering runs.
func Parse(body []byte, header http.Header, useSSH bool) (*Event, error) {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	url := payload.Repository.CloneURL
	if useSSH {
		url = payload.Repository.SSHURL
	}
	if url == "" {
		return nil, ErrMissingRepoURL
	}

	return &Event{
		RepoURL:  url,
		Commit:   payload.After,
		Ref:      payload.Ref,
		Type:     headerValue(header, giteaEventHeader, githubEventHeader),
		Delivery: headerValue(header, giteaDeliveryHeader, githubDeliveryHeader),
	}, nil
}

func headerValue(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Decision is the outcome of running an Event through the filter chain.
type Decision int

const (
	// Deploy admits the event to the build pipeline.
	Deploy Decision = iota

	// RejectRepo is a client-facing rejection: the repository URL does not
	// match the allow-pattern.
	RejectRepo

	// SkipEventType is a silent no-op for anything other than a push.
	SkipEventType

	// SkipRef is a silent no-op for pushes to a non-deployable ref.
	SkipRef

	// RejectCommit is a client-facing rejection: a deployable push arrived
	// without a commit SHA, which cannot be checked out.
	RejectCommit
)

// String names the decision for logs.
func (d Decision) String() string {
	switch d {
	case Deploy:
		return "deploy"
	case RejectRepo:
		return "reject_repo"
	case SkipEventType:
		return "skip_event_type"
	case SkipRef:
		return "skip_ref"
	case RejectCommit:
		return "reject_commit"
	default:
		return "unknown"
	}
}

// Filter is the ordered filter chain applied to every authenticated event.
type Filter struct {
	// Allow must be anchored for a whole-string match; the configuration
	// layer compiles it that way.
	Allow *regexp.Regexp

	// Ref is the single deployable ref, compared by string equality.
	Ref string
}

// Evaluate runs the filters in their fixed order, short-circuiting on the
// first one that fails. An event with a disallowed repository never reaches
// the event-type or ref checks.
func (f *Filter) Evaluate(e *Event) Decision {
	if !f.Allow.MatchString(e.RepoURL) {
		return RejectRepo
	}
	if e.Type != EventTypePush {
		return SkipEventType
	}
	if e.Ref != f.Ref {
		return SkipRef
	}
	if e.Commit == "" {
		return RejectCommit
	}
	return Deploy
}
