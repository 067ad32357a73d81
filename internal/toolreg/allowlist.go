package toolreg

// exposedTools is the fixed set of memory operations offered to the LLM,
// in canonical dot form. Backend tools outside this set are never exposed,
// even when the server advertises them.
var exposedTools = []string{
	"memory.recall",
	"memory.remember",
	"memory.forget",
	"memory.batch",
	"memory.context",
	"memory.stats",
	"memory.recent",
	"memory.list_entities",
	"memory.get_entity",
	"memory.search_entities",
	"memory.add_observations",
	"memory.delete_observations",
	"memory.create_relations",
	"memory.delete_relations",
}

// blockedTools are administrative operations excluded regardless of what the
// backend advertises.
var blockedTools = map[string]bool{
	"memory.purge":          true,
	"memory.flush_buffer":   true,
	"memory.merge_entities": true,
}

// mutatingTools write to the memory store. Calls to these get the originating
// channel injected as source_channel for provenance.
var mutatingTools = map[string]bool{
	"memory.remember":            true,
	"memory.forget":              true,
	"memory.batch":               true,
	"memory.add_observations":    true,
	"memory.delete_observations": true,
	"memory.create_relations":    true,
	"memory.delete_relations":    true,
}

var exposedSet = func() map[string]bool {
	set := make(map[string]bool, len(exposedTools))
	for _, name := range exposedTools {
		set[name] = true
	}
	return set
}()

// underscoreToDot maps the Anthropic-safe spelling of each exposed tool back
// to its canonical dot form.
var underscoreToDot = func() map[string]string {
	m := make(map[string]string, len(exposedTools))
	for _, name := range exposedTools {
		m[ToUnderscoreName(name)] = name
	}
	return m
}()

// IsMutating reports whether a tool (dot form) writes to the memory store.
func IsMutating(dotName string) bool {
	return mutatingTools[dotName]
}
