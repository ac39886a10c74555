// Package authz evaluates a static Cedar policy on the proxy path before a
// request is forwarded: may this session call this server's method. With no
// policy file configured every call is permitted, so the check costs
// nothing in the default desktop deployment.
package authz

import (
	"errors"
	"fmt"
	"os"

	cedar "github.com/cedar-policy/cedar-go"
)

// ErrDenied is returned when the policy set forbids the call.
var ErrDenied = errors.New("authz: request denied by policy")

// Cedar entity types the policy vocabulary uses. A policy file addresses
// them as, e.g., permit(principal == Session::"abc", action ==
// Action::"call", resource == Server::"github");
const (
	entitySession = "Session"
	entityServer  = "Server"
	entityAction  = "Action"
	actionCall    = "call"
)

// Authorizer holds a parsed Cedar policy set. The zero value (and a nil
// *Authorizer) permits everything.
type Authorizer struct {
	policies *cedar.PolicySet
}

// Load parses the Cedar policy file at path. An empty path yields a nil
// Authorizer, meaning allow-all.
func Load(path string) (*Authorizer, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: reading policy file %s: %w", path, err)
	}
	return Parse(path, raw)
}

// Parse compiles raw Cedar policy text. The name is used only in parse
// error positions.
func Parse(name string, raw []byte) (*Authorizer, error) {
	ps, err := cedar.NewPolicySetFromBytes(name, raw)
	if err != nil {
		return nil, fmt.Errorf("authz: parsing policies: %w", err)
	}
	return &Authorizer{policies: ps}, nil
}

// Authorize decides whether sessionID may call method on serverName.
// Returns nil on permit, ErrDenied on forbid.
func (a *Authorizer) Authorize(sessionID, serverName, method string) error {
	if a == nil || a.policies == nil {
		return nil
	}

	req := cedar.Request{
		Principal: cedar.NewEntityUID(entitySession, cedar.String(sessionID)),
		Action:    cedar.NewEntityUID(entityAction, actionCall),
		Resource:  cedar.NewEntityUID(entityServer, cedar.String(serverName)),
		Context: cedar.NewRecord(cedar.RecordMap{
			"method": cedar.String(method),
		}),
	}

	decision, _ := cedar.Authorize(a.policies, cedar.EntityMap{}, req)
	if decision != cedar.Allow {
		return fmt.Errorf("%w: session %q, server %q", ErrDenied, sessionID, serverName)
	}
	return nil
}
