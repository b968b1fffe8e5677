package association

// SeedOrder returns entity names so that every entity comes after the masters it is
// slaveOf. Ties keep declaration order. Self references are ignored and any entities
// left over by a cycle are appended in declaration order.
func SeedOrder(names []string, maps map[string]DependencyMap) []string {
	placed := make(map[string]bool, len(names))
	declared := make(map[string]bool, len(names))
	for _, n := range names {
		declared[n] = true
	}

	order := make([]string, 0, len(names))
	for len(order) < len(names) {
		progressed := false
		for _, name := range names {
			if placed[name] || !ready(name, maps[name], placed, declared) {
				continue
			}
			placed[name] = true
			order = append(order, name)
			progressed = true
			// restart from the top so earlier declared entities win ties
			break
		}
		if !progressed {
			break
		}
	}

	for _, name := range names {
		if !placed[name] {
			order = append(order, name)
		}
	}

	return order
}

func ready(name string, dm DependencyMap, placed, declared map[string]bool) bool {
	for _, master := range dm.SlaveOf {
		if master == name || !declared[master] {
			continue
		}
		if !placed[master] {
			return false
		}
	}
	return true
}
