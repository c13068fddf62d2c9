package orchestrator

import "github.com/Limetric/sqlmirror/catalog"

// levelize groups selected tables into dependency levels: level 0 has no
// foreign key to another table in this run; level N references only
// tables in levels < N. Within a level, tables are independent and may
// run in parallel; across levels, referenced-before-referencer is strict,
// per spec.md §5.
func levelize(schemas map[catalog.TableRef]*catalog.TableSchema) [][]catalog.TableRef {
	inDegree := make(map[catalog.TableRef]int, len(schemas))
	dependents := make(map[catalog.TableRef][]catalog.TableRef, len(schemas))
	for ref := range schemas {
		inDegree[ref] = 0
	}
	for ref, schema := range schemas {
		seen := make(map[catalog.TableRef]bool)
		for _, fk := range schema.ForeignKeys {
			if _, inRun := schemas[fk.Referenced]; !inRun || fk.Referenced.Equal(ref) {
				continue
			}
			if seen[fk.Referenced] {
				continue
			}
			seen[fk.Referenced] = true
			inDegree[ref]++
			dependents[fk.Referenced] = append(dependents[fk.Referenced], ref)
		}
	}

	var levels [][]catalog.TableRef
	remaining := len(schemas)
	resolved := make(map[catalog.TableRef]bool, len(schemas))

	for remaining > 0 {
		var level []catalog.TableRef
		for ref, deg := range inDegree {
			if !resolved[ref] && deg == 0 {
				level = append(level, ref)
			}
		}
		if len(level) == 0 {
			// A cycle across mirrored tables; break it by taking every
			// remaining table as one level together — the Batch Applier's
			// within-table ordering still holds, and cross-table FK
			// violations inside a cycle are outside this system's Non-goals.
			for ref := range inDegree {
				if !resolved[ref] {
					level = append(level, ref)
				}
			}
		}
		for _, ref := range level {
			resolved[ref] = true
			remaining--
			for _, dep := range dependents[ref] {
				inDegree[dep]--
			}
		}
		levels = append(levels, level)
	}
	return levels
}
