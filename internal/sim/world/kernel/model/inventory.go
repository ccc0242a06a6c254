package model

import "sort"

// Inventory maps resource id to quantity. Zero entries are removed.
type Inventory map[string]int

func (inv Inventory) Count(item string) int { return inv[item] }

func (inv Inventory) Add(item string, n int) {
	if n <= 0 || item == "" {
		return
	}
	inv[item] += n
}

// Take removes n units, or nothing when fewer than n are present.
func (inv Inventory) Take(item string, n int) bool {
	if n <= 0 {
		return true
	}
	if inv[item] < n {
		return false
	}
	inv[item] -= n
	if inv[item] == 0 {
		delete(inv, item)
	}
	return true
}

func (inv Inventory) Total() int {
	n := 0
	for _, v := range inv {
		n += v
	}
	return n
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func (inv Inventory) List() []ItemStack {
	out := make([]ItemStack, 0, len(inv))
	for item, n := range inv {
		if n <= 0 {
			continue
		}
		out = append(out, ItemStack{Item: item, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}
