package render

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Filters_Strings(t *testing.T) {
	tests := []struct {
		filter string
		input  string
		want   string
	}{
		{"upper", "abc", "ABC"},
		{"lower", "ABC", "abc"},
		{"title", "hello world", "Hello World"},
		{"capitalize", "hELLO", "Hello"},
		{"snake", "UserID", "user_id"},
		{"snake", "HTTPServer", "http_server"},
		{"kebab", "user name", "user-name"},
		{"camel", "user_id", "userId"},
		{"trim", "  x  ", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"/"+tt.input, func(t *testing.T) {
			got, err := filters[tt.filter](tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_Filters_Title_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				got, err := filters["title"]("hello wide world of go")
				if err != nil {
					errs <- err
					return
				}
				if got != "Hello Wide World Of Go" {
					errs <- fmt.Errorf("title = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func Test_Filters_Arity(t *testing.T) {
	_, err := filters["upper"]("a", "b")
	assert.Error(t, err)

	_, err = filters["replace"]("a", "b")
	assert.Error(t, err)

	_, err = filters["truncate"]("abc", -1)
	assert.Error(t, err)
}

func Test_Filters_Join(t *testing.T) {
	got, err := filters["join"]([]any{"a", "b"}, "-")
	require.NoError(t, err)
	assert.Equal(t, "a-b", got)

	got, err = filters["join"]([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a, b", got)

	_, err = filters["join"](map[string]any{})
	assert.Error(t, err)
}

func Test_Filters_Replace(t *testing.T) {
	got, err := filters["replace"]("a.b.c", ".", "/")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", got)
}

func Test_FilterNames_Sorted(t *testing.T) {
	names := FilterNames()
	assert.Len(t, names, len(filters))
	assert.IsIncreasing(t, names)
}
