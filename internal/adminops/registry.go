package adminops

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// CaseRegistry is an in-memory Toolset over the business records of a case:
// parties, deadlines and notes. It stands in for the persistence shell the
// workflow core treats as an external collaborator; the CLI demo and the
// tests run against it.
type CaseRegistry struct {
	mu        sync.Mutex
	parties   map[string]party
	deadlines map[string]deadline
	notes     map[string]note
}

type party struct {
	ID   string
	Name string
	Role string
}

type deadline struct {
	ID     string
	Matter string
	Due    string
}

type note struct {
	ID   string
	Text string
}

// NewCaseRegistry creates an empty registry.
func NewCaseRegistry() *CaseRegistry {
	return &CaseRegistry{
		parties:   make(map[string]party),
		deadlines: make(map[string]deadline),
		notes:     make(map[string]note),
	}
}

// Definitions implements Toolset.
func (c *CaseRegistry) Definitions() []ToolDef {
	return []ToolDef{
		{Name: "create_party", Description: "Add a party to the case", EntityType: "party", Verb: "create", Args: []string{"name", "role"}},
		{Name: "update_party", Description: "Change a party's name or role", EntityType: "party", Verb: "update", Args: []string{"party_id", "name", "role"}},
		{Name: "delete_party", Description: "Remove a party from the case", EntityType: "party", Verb: "delete", Args: []string{"party_id"}},
		{Name: "add_deadline", Description: "Record a deadline", EntityType: "deadline", Verb: "create", Args: []string{"matter", "due"}},
		{Name: "cancel_deadline", Description: "Cancel a recorded deadline", EntityType: "deadline", Verb: "delete", Args: []string{"deadline_id"}},
		{Name: "add_note", Description: "Attach a note to the case", EntityType: "note", Verb: "create", Args: []string{"text"}},
		{Name: "list_parties", Description: "List the parties on the case"},
	}
}

// Invoke implements Toolset. Failures are reported in the result, never as
// a panic; unknown tools fail the single call.
func (c *CaseRegistry) Invoke(_ context.Context, call ToolCall) ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch call.Name {
	case "create_party":
		name := call.Args["name"]
		if name == "" {
			return failure(call, "create_party requires a name")
		}
		p := party{ID: newID("party"), Name: name, Role: call.Args["role"]}
		c.parties[p.ID] = p
		return success(call, fmt.Sprintf("created party %s (%s, %s)", p.ID, p.Name, p.Role),
			&MutationRecord{Verb: "create", EntityType: "party", EntityID: p.ID})

	case "update_party":
		id := call.Args["party_id"]
		p, ok := c.parties[id]
		if !ok {
			return failure(call, fmt.Sprintf("no such party: %q", id))
		}
		if name := call.Args["name"]; name != "" {
			p.Name = name
		}
		if role := call.Args["role"]; role != "" {
			p.Role = role
		}
		c.parties[id] = p
		return success(call, fmt.Sprintf("updated party %s (%s, %s)", p.ID, p.Name, p.Role),
			&MutationRecord{Verb: "update", EntityType: "party", EntityID: p.ID})

	case "delete_party":
		id := call.Args["party_id"]
		if _, ok := c.parties[id]; !ok {
			return failure(call, fmt.Sprintf("no such party: %q", id))
		}
		delete(c.parties, id)
		return success(call, fmt.Sprintf("deleted party %s", id),
			&MutationRecord{Verb: "delete", EntityType: "party", EntityID: id})

	case "add_deadline":
		matter, due := call.Args["matter"], call.Args["due"]
		if matter == "" || due == "" {
			return failure(call, "add_deadline requires matter and due")
		}
		d := deadline{ID: newID("deadline"), Matter: matter, Due: due}
		c.deadlines[d.ID] = d
		return success(call, fmt.Sprintf("added deadline %s (%s, due %s)", d.ID, d.Matter, d.Due),
			&MutationRecord{Verb: "create", EntityType: "deadline", EntityID: d.ID})

	case "cancel_deadline":
		id := call.Args["deadline_id"]
		if _, ok := c.deadlines[id]; !ok {
			return failure(call, fmt.Sprintf("no such deadline: %q", id))
		}
		delete(c.deadlines, id)
		return success(call, fmt.Sprintf("cancelled deadline %s", id),
			&MutationRecord{Verb: "delete", EntityType: "deadline", EntityID: id})

	case "add_note":
		text := call.Args["text"]
		if text == "" {
			return failure(call, "add_note requires text")
		}
		n := note{ID: newID("note"), Text: text}
		c.notes[n.ID] = n
		return success(call, fmt.Sprintf("added note %s", n.ID),
			&MutationRecord{Verb: "create", EntityType: "note", EntityID: n.ID})

	case "list_parties":
		names := make([]string, 0, len(c.parties))
		for _, p := range c.parties {
			names = append(names, fmt.Sprintf("%s (%s, %s)", p.ID, p.Name, p.Role))
		}
		sort.Strings(names)
		if len(names) == 0 {
			return success(call, "no parties on record", nil)
		}
		return success(call, strings.Join(names, "; "), nil)

	default:
		return failure(call, fmt.Sprintf("unknown tool: %q", call.Name))
	}
}

func newID(entityType string) string {
	return fmt.Sprintf("%s-%s", entityType, uuid.New().String()[:8])
}

func success(call ToolCall, content string, m *MutationRecord) ToolResult {
	return ToolResult{CallID: call.ID, Content: content, Mutation: m}
}

func failure(call ToolCall, msg string) ToolResult {
	return ToolResult{CallID: call.ID, Err: msg}
}
