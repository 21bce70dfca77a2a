package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123 Main Street, Springfield, IL 62701", "123 main st, springfield, il 62701"},
		{"  45   Oak   Avenue ,Portland  ", "45 oak ave, portland"},
		{"7 Elm Road", "7 elm rd"},
		{"9 Sunset Drive", "9 sunset dr"},
		{"1 Cherry Lane", "1 cherry ln"},
		{"2 Kings Court", "2 kings ct"},
		{"3 Market Place", "3 market pl"},
		{"4 Moon Crescent", "4 moon cres"},
		{"10 Streetview Way", "10 streetview way"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.in))
		})
	}
}

func TestKey(t *testing.T) {
	t.Run("EquivalentSpellings", func(t *testing.T) {
		a := Key(Query{Addresses: []string{"123 Main Street, City"}, QueryType: "single"})
		b := Key(Query{Addresses: []string{"123  main st ,city"}, QueryType: " Single "})
		assert.Equal(t, a, b)
		assert.Len(t, a, 16)
	})

	t.Run("OrderInsensitive", func(t *testing.T) {
		a := Key(Query{Addresses: []string{"1 A St", "2 B St"}, QueryType: "compare"})
		b := Key(Query{Addresses: []string{"2 B Street", "1 A Street"}, QueryType: "compare"})
		assert.Equal(t, a, b)
	})

	t.Run("QueryTypeMatters", func(t *testing.T) {
		a := Key(Query{Addresses: []string{"1 A St", "2 B St"}, QueryType: "compare"})
		b := Key(Query{Addresses: []string{"1 A St", "2 B St"}, QueryType: "multiple"})
		assert.NotEqual(t, a, b)
	})
}

func TestQueryMatches(t *testing.T) {
	q := Query{Addresses: []string{"123 Main Street, Springfield", "9 Oak Ave"}}

	assert.True(t, q.Matches("123 main st"))
	assert.True(t, q.Matches("OAK AVENUE"))
	assert.False(t, q.Matches("500 Pine Rd"))
	assert.False(t, q.Matches("   "))
}

func TestQueryMatchesWholeWords(t *testing.T) {
	tests := []struct {
		address string
		target  string
		want    bool
	}{
		{"1 Main Street", "1 Main St", true},
		{"11 Main Street", "1 Main St", false},
		{"21 Main Street, Sydney", "1 Main St", false},
		{"11 Main Street, 1 Main Street", "1 Main St", true},
		{"12 Main Street, Sydney", "main st", true},
		{"12 Mainland Road", "main", false},
		{"12 Main Street, Sydney", "street, sydney", true},
		{"Unit 4/12 Main St", "4/12 main st", true},
	}

	for _, tt := range tests {
		t.Run(tt.address+"/"+tt.target, func(t *testing.T) {
			q := Query{Addresses: []string{tt.address}}
			assert.Equal(t, tt.want, q.Matches(tt.target))
		})
	}
}
