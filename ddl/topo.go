package ddl

import "github.com/Limetric/sqlmirror/catalog"

// topoSortByForeignKeys orders tables referenced-before-referencer. Tables
// outside the batch (referenced but not being created here) impose no
// ordering constraint. Cycles within the batch are broken by falling back
// to input order for any table left unresolved once no more roots can be
// found — callers rely on EmitBatch's two-pass split (CREATE TABLE first,
// FOREIGN KEY second) to make that safe.
func topoSortByForeignKeys(tables []*catalog.TableSchema) []*catalog.TableSchema {
	byRef := make(map[catalog.TableRef]*catalog.TableSchema, len(tables))
	for _, t := range tables {
		byRef[t.Ref] = t
	}

	inDegree := make(map[catalog.TableRef]int, len(tables))
	dependents := make(map[catalog.TableRef][]catalog.TableRef, len(tables))
	for _, t := range tables {
		inDegree[t.Ref] = 0
	}
	for _, t := range tables {
		seen := make(map[catalog.TableRef]bool)
		for _, fk := range t.ForeignKeys {
			if _, inBatch := byRef[fk.Referenced]; !inBatch || fk.Referenced.Equal(t.Ref) {
				continue
			}
			if seen[fk.Referenced] {
				continue
			}
			seen[fk.Referenced] = true
			inDegree[t.Ref]++
			dependents[fk.Referenced] = append(dependents[fk.Referenced], t.Ref)
		}
	}

	var queue []catalog.TableRef
	for _, t := range tables {
		if inDegree[t.Ref] == 0 {
			queue = append(queue, t.Ref)
		}
	}

	var orderedRefs []catalog.TableRef
	visited := make(map[catalog.TableRef]bool)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if visited[ref] {
			continue
		}
		visited[ref] = true
		orderedRefs = append(orderedRefs, ref)
		for _, dep := range dependents[ref] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Anything left unresolved sits in a cycle; append in input order —
	// safe because FK constraints are emitted in a separate second pass.
	for _, t := range tables {
		if !visited[t.Ref] {
			orderedRefs = append(orderedRefs, t.Ref)
			visited[t.Ref] = true
		}
	}

	ordered := make([]*catalog.TableSchema, 0, len(tables))
	for _, ref := range orderedRefs {
		ordered = append(ordered, byRef[ref])
	}
	return ordered
}
