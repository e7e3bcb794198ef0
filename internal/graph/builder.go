package graph

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/pkg/types"
)

// Contribution types.
const (
	ContribSharedContact = "shared_contact"
	ContribChat          = "chat"
)

// Secondary chat participants need this many messages in one thread to be
// promoted to an ad-hoc node.
const chatPromotionThreshold = 5

// maxCaseFiles caps the per-node legal mention list to the most-mentioned files.
const maxCaseFiles = 50

// MentionSource provides legal-corpus mention lists per display name.
type MentionSource interface {
	Mentions(person string) []types.FileMention
}

// ContactObservation is one address-book entry seen on a device.
type ContactObservation struct {
	Name        string
	SourceApp   string
	DeviceOwner string
}

// ThreadObservation is one chat thread seen on a device.
type ThreadObservation struct {
	DeviceOwner  string
	Platform     string
	Participants []string
	MessageCount int
	Started      string
}

// Input is everything one graph build consumes, collected across devices.
// Call and email counts are keyed by device owner display name.
type Input struct {
	Contacts    []ContactObservation
	Threads     []ThreadObservation
	CallCounts  map[string]int
	EmailCounts map[string]int
}

// Builder assembles the relationship graph. A Builder is single-use: create
// one per build.
type Builder struct {
	resolver *Resolver
	legal    MentionSource
	log      *logrus.Entry

	nodes map[string]*types.Node
	edges map[edgeKey]*edgeAccum
}

// NewBuilder creates a Builder. legal may be nil when no corpus is configured.
func NewBuilder(resolver *Resolver, legal MentionSource) *Builder {
	return &Builder{
		resolver: resolver,
		legal:    legal,
		log:      logrus.WithField("component", "graph"),
		nodes:    map[string]*types.Node{},
		edges:    map[edgeKey]*edgeAccum{},
	}
}

type edgeKey [2]string

func keyFor(a, b string) edgeKey {
	if a < b {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// edgeAccum keeps the weight equal to the sum of contribution counts: every
// count increment below is paired with an equal weight increment.
type edgeAccum struct {
	weight   int
	contribs []*types.EdgeContribution
}

func (b *Builder) edge(a, nodeB string) *edgeAccum {
	k := keyFor(a, nodeB)
	e := b.edges[k]
	if e == nil {
		e = &edgeAccum{}
		b.edges[k] = e
	}
	return e
}

func (e *edgeAccum) sharedContact(device string) {
	for _, c := range e.contribs {
		if c.Type == ContribSharedContact {
			c.Count++
			e.weight++
			if device != "" && !containsString(c.Devices, device) {
				c.Devices = append(c.Devices, device)
			}
			return
		}
	}
	c := &types.EdgeContribution{Type: ContribSharedContact, Count: 1}
	if device != "" {
		c.Devices = []string{device}
	}
	e.contribs = append(e.contribs, c)
	e.weight++
}

func (e *edgeAccum) chat(platform string, messages int, started string) {
	for _, c := range e.contribs {
		if c.Type == ContribChat && c.Platform == platform {
			c.Count += messages
			c.MessageCount += messages
			e.weight += messages
			return
		}
	}
	e.contribs = append(e.contribs, &types.EdgeContribution{
		Type:         ContribChat,
		Platform:     platform,
		Count:        messages,
		MessageCount: messages,
		DateRange:    started,
	})
	e.weight += messages
}

// Build runs the full resolution pass and returns the graph with edges
// sorted by descending weight.
func (b *Builder) Build(in Input) *types.Network {
	for _, p := range b.resolver.Participants() {
		id := MakeID(p.Name)
		b.nodes[id] = &types.Node{
			ID:      id,
			Name:    p.Name,
			Type:    types.NodePrimary,
			Role:    p.Role,
			Devices: p.Devices,
		}
	}

	unmatched := b.processContacts(in.Contacts)
	b.promoteSecondaries(unmatched)
	b.processCounts(in.CallCounts, in.EmailCounts)
	b.processThreads(in.Threads)
	b.linkSharedContactOwners(unmatched)
	b.annotateLegalMentions()

	return b.materialize()
}

type contactGroup struct {
	display string
	owners  map[string]bool
}

// processContacts routes each observation to its primary node or
// accumulates it by normalized name for secondary promotion.
func (b *Builder) processContacts(contacts []ContactObservation) map[string]*contactGroup {
	unmatched := map[string]*contactGroup{}

	for _, c := range contacts {
		norm := Normalize(c.Name)
		if len(norm) < 2 {
			continue
		}

		if primary, ok := b.resolver.MatchPrimary(c.Name); ok {
			node := b.nodes[MakeID(primary)]
			node.AppearsOn = append(node.AppearsOn, c.DeviceOwner)
			node.ContactCount++

			if owner, ok := b.resolver.MatchPrimary(c.DeviceOwner); ok && owner != primary {
				b.edge(MakeID(owner), node.ID).sharedContact(c.DeviceOwner)
			}
			continue
		}

		g := unmatched[norm]
		if g == nil {
			g = &contactGroup{display: c.Name, owners: map[string]bool{}}
			unmatched[norm] = g
		}
		g.owners[c.DeviceOwner] = true
	}
	return unmatched
}

// promoteSecondaries creates a secondary node for every unmatched name seen
// on two or more distinct device owners, with a shared_contact edge to each
// owner that resolves to a primary.
func (b *Builder) promoteSecondaries(unmatched map[string]*contactGroup) {
	for _, norm := range sortedKeys(unmatched) {
		g := unmatched[norm]
		if len(g.owners) < 2 {
			continue
		}

		id := MakeID(g.display)
		if _, exists := b.nodes[id]; !exists {
			b.nodes[id] = &types.Node{
				ID:           id,
				Name:         g.display,
				Type:         types.NodeSecondary,
				Role:         "contact",
				ContactCount: len(g.owners),
				AppearsOn:    sortedKeys(g.owners),
			}
		}

		for _, owner := range sortedKeys(g.owners) {
			if primary, ok := b.resolver.MatchPrimary(owner); ok {
				b.edge(MakeID(primary), id).sharedContact(owner)
			}
		}
	}
}

func (b *Builder) processCounts(calls, emails map[string]int) {
	for owner, n := range calls {
		if primary, ok := b.resolver.MatchPrimary(owner); ok {
			b.nodes[MakeID(primary)].CallCount += n
		}
	}
	for owner, n := range emails {
		if primary, ok := b.resolver.MatchPrimary(owner); ok {
			b.nodes[MakeID(primary)].EmailCount += n
		}
	}
}

// processThreads turns chat participation into edges weighted by message
// count. Unmatched participants ride along only if they already have a node,
// or are active enough to earn an ad-hoc secondary one.
func (b *Builder) processThreads(threads []ThreadObservation) {
	for _, t := range threads {
		owner, ok := b.resolver.MatchPrimary(t.DeviceOwner)
		if !ok {
			continue
		}
		ownerID := MakeID(owner)

		for _, participant := range t.Participants {
			if participant == "" || participant == "****" {
				continue
			}

			if primary, ok := b.resolver.MatchPrimary(participant); ok {
				if primary == owner {
					continue
				}
				target := b.nodes[MakeID(primary)]
				target.MessageCount += t.MessageCount
				b.edge(ownerID, target.ID).chat(t.Platform, t.MessageCount, t.Started)
				continue
			}

			id := MakeID(participant)
			if node, exists := b.nodes[id]; exists {
				node.MessageCount += t.MessageCount
				b.edge(ownerID, id).chat(t.Platform, t.MessageCount, t.Started)
			} else if t.MessageCount >= chatPromotionThreshold {
				b.nodes[id] = &types.Node{
					ID:           id,
					Name:         participant,
					Type:         types.NodeSecondary,
					Role:         "chat_contact",
					MessageCount: t.MessageCount,
					AppearsOn:    []string{t.DeviceOwner},
				}
				b.edge(ownerID, id).chat(t.Platform, t.MessageCount, t.Started)
			}
		}
	}
}

// linkSharedContactOwners adds a shared_contact contribution between every
// pair of primary owners whose devices list the same unmatched contact.
func (b *Builder) linkSharedContactOwners(unmatched map[string]*contactGroup) {
	for _, norm := range sortedKeys(unmatched) {
		g := unmatched[norm]
		owners := sortedKeys(g.owners)
		if len(owners) < 2 {
			continue
		}

		for i := 0; i < len(owners); i++ {
			for j := i + 1; j < len(owners); j++ {
				a, okA := b.resolver.MatchPrimary(owners[i])
				bb, okB := b.resolver.MatchPrimary(owners[j])
				if !okA || !okB || a == bb {
					continue
				}
				b.edge(MakeID(a), MakeID(bb)).sharedContact("")
			}
		}
	}
}

func (b *Builder) annotateLegalMentions() {
	if b.legal == nil {
		return
	}
	for _, node := range b.nodes {
		mentions := b.legal.Mentions(node.Name)
		if len(mentions) == 0 {
			continue
		}
		node.CaseFileCount = len(mentions)
		for _, m := range mentions {
			node.TotalMentions += m.Mentions
		}
		if len(mentions) > maxCaseFiles {
			mentions = mentions[:maxCaseFiles]
		}
		node.CaseFiles = mentions
	}
}

func (b *Builder) materialize() *types.Network {
	nodes := make([]types.Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		n.AppearsOn = dedupeSorted(n.AppearsOn)
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type == types.NodePrimary
		}
		return nodes[i].Name < nodes[j].Name
	})

	edges := make([]types.Edge, 0, len(b.edges))
	for k, e := range b.edges {
		if e.weight <= 0 {
			continue
		}
		contribs := make([]types.EdgeContribution, 0, len(e.contribs))
		for _, c := range e.contribs {
			contribs = append(contribs, *c)
		}
		edges = append(edges, types.Edge{
			Source:        k[0],
			Target:        k[1],
			Weight:        e.weight,
			Contributions: contribs,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	b.log.WithFields(logrus.Fields{
		"nodes": len(nodes),
		"edges": len(edges),
	}).Info("relationship graph built")

	return &types.Network{Nodes: nodes, Edges: edges}
}

// PersonDetails returns one node plus every edge touching it, sorted by
// weight descending. The second return is false for unknown identifiers.
func PersonDetails(n *types.Network, id string) (*types.PersonDetails, bool) {
	var person *types.Node
	byID := make(map[string]types.Node, len(n.Nodes))
	for i := range n.Nodes {
		byID[n.Nodes[i].ID] = n.Nodes[i]
		if n.Nodes[i].ID == id {
			person = &n.Nodes[i]
		}
	}
	if person == nil {
		return nil, false
	}

	var conns []types.Connection
	for _, e := range n.Edges {
		var otherID string
		switch id {
		case e.Source:
			otherID = e.Target
		case e.Target:
			otherID = e.Source
		default:
			continue
		}
		if other, ok := byID[otherID]; ok {
			conns = append(conns, types.Connection{Person: other, Edge: e})
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Edge.Weight > conns[j].Edge.Weight
	})

	return &types.PersonDetails{
		Person:           *person,
		Connections:      conns,
		TotalConnections: len(conns),
	}, true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupeSorted(list []string) []string {
	if len(list) == 0 {
		return list
	}
	sort.Strings(list)
	out := list[:1]
	for _, v := range list[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
