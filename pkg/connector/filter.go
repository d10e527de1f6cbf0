package connector

import "fmt"

// Where is a declarative predicate keyed by field name.
type Where map[string]interface{}

// Filter is the query the host framework passes to bulk operations.
// Only identifier lookups in Where are supported.
type Filter struct {
	Where Where
}

// KeysFromFilter derives the document ids an identifier-only predicate
// selects. It supports equality on idField with a string or []byte value,
// and {"inq": [...]} whose elements are returned verbatim, duplicates and
// order included. Any other shape yields no keys, including a predicate
// that constrains fields besides idField.
func KeysFromFilter(where Where, idField string) []string {
	if len(where) != 1 {
		return nil
	}
	value, ok := where[idField]
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case string:
		return []string{v}
	case []byte:
		return []string{string(v)}
	case map[string]interface{}:
		return keysFromOperator(v)
	case Where:
		return keysFromOperator(v)
	default:
		return nil
	}
}

func keysFromOperator(op map[string]interface{}) []string {
	if len(op) != 1 {
		return nil
	}
	set, ok := op["inq"]
	if !ok {
		return nil
	}

	switch items := set.(type) {
	case []string:
		return append([]string(nil), items...)
	case []interface{}:
		keys := make([]string, 0, len(items))
		for _, item := range items {
			if key, ok := idString(item); ok {
				keys = append(keys, key)
			} else {
				keys = append(keys, fmt.Sprint(item))
			}
		}
		return keys
	default:
		return nil
	}
}
