package supervisor

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"
)

func names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name         string
		accounts     int
		proxies      int
		p            int
		wantAccounts []int
		wantProxies  []int
	}{
		{"even", 6, 6, 3, []int{2, 2, 2}, []int{2, 2, 2}},
		{"account remainder to last", 7, 6, 3, []int{2, 2, 3}, []int{2, 2, 2}},
		{"proxy remainder to first", 6, 8, 3, []int{2, 2, 2}, []int{3, 3, 2}},
		{"single process", 5, 2, 1, []int{5}, []int{2}},
		{"capped at account count", 2, 4, 8, []int{1, 1}, []int{2, 2}},
		{"zero processes treated as one", 3, 1, 0, []int{3}, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := names("acc", tt.accounts)
			proxies := names("proxy", tt.proxies)

			parts, err := Split(accounts, proxies, tt.p)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}

			var gotAccounts, gotProxies []int
			var allAccounts, allProxies []string
			for i, part := range parts {
				if part.Index != i {
					t.Errorf("parts[%d].Index = %d", i, part.Index)
				}
				gotAccounts = append(gotAccounts, len(part.Accounts))
				gotProxies = append(gotProxies, len(part.Proxies))
				allAccounts = append(allAccounts, part.Accounts...)
				allProxies = append(allProxies, part.Proxies...)
			}

			if !reflect.DeepEqual(gotAccounts, tt.wantAccounts) {
				t.Errorf("account sizes = %v, want %v", gotAccounts, tt.wantAccounts)
			}
			if !reflect.DeepEqual(gotProxies, tt.wantProxies) {
				t.Errorf("proxy sizes = %v, want %v", gotProxies, tt.wantProxies)
			}
			// Contiguous split: concatenation gives back the input order.
			if !slices.Equal(allAccounts, accounts) {
				t.Errorf("accounts not covered in order: %v", allAccounts)
			}
			if !slices.Equal(allProxies, proxies) {
				t.Errorf("proxies not covered in order: %v", allProxies)
			}
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	accounts := names("acc", 103)
	proxies := names("proxy", 17)

	a, err := Split(accounts, proxies, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Split(accounts, proxies, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Split is not deterministic")
	}
}

func TestSplit_Errors(t *testing.T) {
	tests := []struct {
		name     string
		accounts int
		proxies  int
		p        int
		want     error
	}{
		{"no proxies", 4, 0, 2, ErrNoProxies},
		{"fewer proxies than processes", 10, 2, 3, ErrNoProxies},
		{"no accounts", 0, 5, 2, ErrNoAccounts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(names("acc", tt.accounts), names("proxy", tt.proxies), tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("Split() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSplit_DoesNotAliasInput(t *testing.T) {
	accounts := names("acc", 4)
	proxies := names("proxy", 2)
	parts, err := Split(accounts, proxies, 2)
	if err != nil {
		t.Fatal(err)
	}
	parts[0].Accounts[0] = "changed"
	parts[0].Proxies[0] = "changed"
	if accounts[0] != "acc0" || proxies[0] != "proxy0" {
		t.Error("Split returned slices sharing the input arrays")
	}
}

func TestProcessCount(t *testing.T) {
	if got := ProcessCount(4); got != 4 {
		t.Errorf("ProcessCount(4) = %d", got)
	}
	if got := ProcessCount(0); got < 1 {
		t.Errorf("ProcessCount(0) = %d, want at least 1", got)
	}
	if got := ProcessCount(-3); got < 1 {
		t.Errorf("ProcessCount(-3) = %d, want at least 1", got)
	}
}

func TestShuffle(t *testing.T) {
	accounts := names("acc", 50)

	a := Shuffle(accounts, 42)
	b := Shuffle(accounts, 42)
	if !slices.Equal(a, b) {
		t.Error("same seed gave different orders")
	}
	if slices.Equal(a, accounts) {
		t.Error("shuffle left 50 items in order")
	}
	if accounts[0] != "acc0" {
		t.Error("Shuffle modified its input")
	}

	sorted := slices.Clone(a)
	slices.Sort(sorted)
	want := slices.Clone(accounts)
	slices.Sort(want)
	if !slices.Equal(sorted, want) {
		t.Error("Shuffle lost or duplicated items")
	}
}
