package topology

// flow is a small unit-capacity max-flow network solved by BFS augmenting
// paths. Switch fleets are small enough that nothing smarter is needed.
type flow struct {
	head []int
	to   []int
	cap  []int
	next []int
}

func newFlow(nodes int) *flow {
	f := &flow{head: make([]int, nodes)}
	for i := range f.head {
		f.head[i] = -1
	}
	return f
}

// add inserts edge u→v with capacity c and its zero-capacity reverse.
func (f *flow) add(u, v, c int) {
	f.to = append(f.to, v)
	f.cap = append(f.cap, c)
	f.next = append(f.next, f.head[u])
	f.head[u] = len(f.to) - 1

	f.to = append(f.to, u)
	f.cap = append(f.cap, 0)
	f.next = append(f.next, f.head[v])
	f.head[v] = len(f.to) - 1
}

// max pushes unit augmenting paths from s to t until none remain or limit
// is reached, and returns the flow found.
func (f *flow) max(s, t, limit int) int {
	total := 0
	for total < limit {
		prev := make([]int, len(f.head))
		for i := range prev {
			prev[i] = -1
		}
		visited := make([]bool, len(f.head))
		visited[s] = true
		queue := []int{s}
		for len(queue) > 0 && !visited[t] {
			u := queue[0]
			queue = queue[1:]
			for e := f.head[u]; e != -1; e = f.next[e] {
				if f.cap[e] > 0 && !visited[f.to[e]] {
					visited[f.to[e]] = true
					prev[f.to[e]] = e
					queue = append(queue, f.to[e])
				}
			}
		}
		if !visited[t] {
			break
		}
		for v := t; v != s; v = f.to[prev[v]^1] {
			f.cap[prev[v]]--
			f.cap[prev[v]^1]++
		}
		total++
	}
	return total
}
