// File: internal/task/task_test.go
package task

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Construction --

func TestNew_Defaults(t *testing.T) {
	tk := New("form_analysis", TypeNavigation, "Analyze the form on this page", WithURL("https://example.com"))

	assert.Equal(t, "form_analysis", tk.ID())
	assert.Equal(t, TypeNavigation, tk.Type())
	assert.Equal(t, StatusPending, tk.Status())
	assert.Equal(t, "https://example.com", tk.URL())
	assert.Nil(t, tk.Result())
	assert.NoError(t, tk.Err())
	assert.Empty(t, tk.Subtasks())
	assert.Empty(t, tk.FormData())
	assert.Empty(t, tk.ParentID())

	got, ok := tk.Registry().Lookup("form_analysis")
	require.True(t, ok)
	assert.Same(t, tk, got)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"navigation", TypeNavigation, false},
		{"FORM_FILL", TypeFormFill, false},
		{" submit ", TypeSubmit, false},
		{"generic", TypeGeneric, false},
		{"", TypeGeneric, false},
		{"teleport", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -- Subtasks & URL inheritance --

func TestAddSubtask_SetsParentAndOrder(t *testing.T) {
	root := New("root", TypeNavigation, "root", WithURL("https://example.com"))
	a := New("a", TypeFormFill, "fill")
	b := New("b", TypeSubmit, "submit")

	root.AddSubtask(a)
	root.AddSubtask(b)

	subs := root.Subtasks()
	require.Len(t, subs, 2)
	assert.Same(t, a, subs[0])
	assert.Same(t, b, subs[1])

	for _, sub := range subs {
		assert.Equal(t, "root", sub.ParentID())
		parent, ok := sub.Parent()
		require.True(t, ok)
		assert.Same(t, root, parent)
		assert.Same(t, root.Registry(), sub.Registry(), "children share the parent's registry")
	}
}

func TestAddSubtask_AdoptsExistingSubtree(t *testing.T) {
	root := New("root", TypeGeneric, "root", WithURL("https://example.com"))
	mid := New("mid", TypeGeneric, "mid")
	leaf := New("leaf", TypeGeneric, "leaf")

	// Build the lower part of the tree first, then attach it.
	mid.AddSubtask(leaf)
	root.AddSubtask(mid)

	got, ok := root.Registry().Lookup("leaf")
	require.True(t, ok)
	assert.Same(t, leaf, got)
	assert.Equal(t, 3, root.Registry().Len())

	url, ok := leaf.InitialURL()
	require.True(t, ok)
	assert.Equal(t, "https://example.com", url)
}

func TestAddSubtask_RepeatedIDs(t *testing.T) {
	t.Run("siblings sharing an id keep their own subtrees", func(t *testing.T) {
		root := New("root", TypeNavigation, "root", WithURL("https://root.example"))
		a := New("c", TypeGeneric, "a", WithURL("https://a.example"))
		b := New("c", TypeGeneric, "b")
		root.AddSubtask(a)
		root.AddSubtask(b)

		leaf := New("leaf", TypeGeneric, "leaf")
		a.AddSubtask(leaf)

		parent, ok := leaf.Parent()
		require.True(t, ok)
		assert.Same(t, a, parent)

		url, ok := leaf.InitialURL()
		require.True(t, ok)
		assert.Equal(t, "https://a.example", url)

		// The label lookup still follows the later registration.
		got, ok := root.Registry().Lookup("c")
		require.True(t, ok)
		assert.Same(t, b, got)
		assert.Equal(t, 4, root.Registry().Len())
	})

	t.Run("child reusing its parent's id", func(t *testing.T) {
		root := New("x", TypeNavigation, "root", WithURL("https://example.com"))
		child := New("x", TypeGeneric, "child")
		root.AddSubtask(child)

		assert.Equal(t, "x", child.ParentID())
		parent, ok := child.Parent()
		require.True(t, ok)
		assert.Same(t, root, parent)

		url, ok := child.InitialURL()
		require.True(t, ok)
		assert.Equal(t, "https://example.com", url)
	})

	t.Run("child reusing its parent's id without any url", func(t *testing.T) {
		root := New("x", TypeGeneric, "root")
		child := New("x", TypeGeneric, "child")
		root.AddSubtask(child)

		_, ok := child.InitialURL()
		assert.False(t, ok)
	})
}

func TestInitialURL(t *testing.T) {
	t.Run("three level chain resolves to root", func(t *testing.T) {
		root := New("root", TypeNavigation, "root", WithURL("https://example.com"))
		mid := New("mid", TypeGeneric, "mid")
		leaf := New("leaf", TypeGeneric, "leaf")
		root.AddSubtask(mid)
		mid.AddSubtask(leaf)

		url, ok := leaf.InitialURL()
		require.True(t, ok)
		assert.Equal(t, "https://example.com", url)
	})

	t.Run("nearest url wins", func(t *testing.T) {
		root := New("root", TypeNavigation, "root", WithURL("https://example.com"))
		mid := New("mid", TypeGeneric, "mid", WithURL("https://example.com/form"))
		leaf := New("leaf", TypeGeneric, "leaf")
		root.AddSubtask(mid)
		mid.AddSubtask(leaf)

		url, ok := leaf.InitialURL()
		require.True(t, ok)
		assert.Equal(t, "https://example.com/form", url)
	})

	t.Run("absent everywhere", func(t *testing.T) {
		root := New("root", TypeGeneric, "root")
		leaf := New("leaf", TypeGeneric, "leaf")
		root.AddSubtask(leaf)

		url, ok := leaf.InitialURL()
		assert.False(t, ok)
		assert.Empty(t, url)
	})
}

// -- Status, result, error --

func TestSetError_ForcesFailed(t *testing.T) {
	for _, prior := range []Status{StatusPending, StatusInProgress, StatusCompleted} {
		t.Run(string(prior), func(t *testing.T) {
			tk := New("t", TypeGeneric, "p")
			tk.UpdateStatus(prior)

			boom := errors.New("boom")
			tk.SetError(boom)

			assert.Equal(t, StatusFailed, tk.Status())
			assert.ErrorIs(t, tk.Err(), boom)
		})
	}
}

func TestSetResult_LeavesStatus(t *testing.T) {
	tk := New("t", TypeGeneric, "p")
	tk.UpdateStatus(StatusInProgress)
	tk.SetResult(&Result{TaskPlan: "plan"})

	assert.Equal(t, StatusInProgress, tk.Status())
	require.NotNil(t, tk.Result())
	assert.Equal(t, "plan", tk.Result().TaskPlan)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

// -- Accumulators --

func TestSetFormData_Merges(t *testing.T) {
	tk := New("t", TypeFormFill, "fill")
	tk.SetFormData(map[string]string{"a": "1"})
	tk.SetFormData(map[string]string{"b": "2"})

	if diff := cmp.Diff(map[string]string{"a": "1", "b": "2"}, tk.FormData()); diff != "" {
		t.Errorf("form data mismatch (-want +got):\n%s", diff)
	}

	tk.SetFormData(map[string]string{"a": "3"})
	if diff := cmp.Diff(map[string]string{"a": "3", "b": "2"}, tk.FormData()); diff != "" {
		t.Errorf("repeated key should overwrite (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"a", "b"}, tk.FormFields())
}

func TestFormData_ReturnsCopy(t *testing.T) {
	tk := New("t", TypeFormFill, "fill")
	tk.SetFormData(map[string]string{"a": "1"})

	fd := tk.FormData()
	fd["a"] = "mutated"
	assert.Equal(t, "1", tk.FormData()["a"])
}

func TestAccumulators_AppendOnly(t *testing.T) {
	tk := New("t", TypeGeneric, "p")
	tk.AddCommand("Fill in the form")
	tk.AddCommand("Submit the form")
	tk.AddDiscoveredURL("https://example.com/a", "A")
	tk.AddDiscoveredURL("https://example.com/b", "B")

	assert.Equal(t, []string{"Fill in the form", "Submit the form"}, tk.Commands())
	assert.Equal(t, []DiscoveredURL{
		{URL: "https://example.com/a", Description: "A"},
		{URL: "https://example.com/b", Description: "B"},
	}, tk.DiscoveredURLs())
}

func TestPredicates(t *testing.T) {
	assert.True(t, New("n", TypeNavigation, "").IsNavigationTask())
	assert.True(t, New("f", TypeFormFill, "").IsFormFillTask())
	assert.True(t, New("s", TypeSubmit, "").IsSubmitTask())

	g := New("g", TypeGeneric, "")
	assert.False(t, g.IsNavigationTask())
	assert.False(t, g.IsFormFillTask())
	assert.False(t, g.IsSubmitTask())
}

func TestSnapshot(t *testing.T) {
	root := New("root", TypeNavigation, "analyze", WithURL("https://example.com"))
	sub := New("root_sub_1", TypeFormFill, "Fill in the name field")
	sub.SetFormData(map[string]string{"firstName": "Jason"})
	root.AddSubtask(sub)
	root.AddCommand("Fill in the name field")
	root.SetResult(&Result{NavigationPlan: "click login"})
	root.UpdateStatus(StatusCompleted)
	sub.SetError(errors.New("no url"))

	want := Snapshot{
		ID:            "root",
		Type:          TypeNavigation,
		Status:        StatusCompleted,
		URL:           "https://example.com",
		InitialPrompt: "analyze",
		Result:        &Result{NavigationPlan: "click login"},
		Commands:      []string{"Fill in the name field"},
		SubtaskIDs:    []string{"root_sub_1"},
	}
	snap := root.Snapshot()
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("root snapshot mismatch (-want +got):\n%s", diff)
	}

	subSnap := sub.Snapshot()
	assert.Equal(t, "root", subSnap.ParentID)
	assert.Equal(t, StatusFailed, subSnap.Status)
	assert.Equal(t, "no url", subSnap.Error)
	assert.Equal(t, map[string]string{"firstName": "Jason"}, subSnap.FormData)

	// The snapshot is detached from later mutation.
	root.AddCommand("later")
	assert.Len(t, snap.Commands, 1)
	assert.Len(t, root.Commands(), 2)
}

func TestResult_JSONKeepsNavigationKeys(t *testing.T) {
	data, err := json.Marshal(&Result{NavigationPlan: "click login"})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]interface{}{
		"visionAnalysis": "",
		"annotatedImage": "",
		"navigationPlan": "click login",
		"pageContent":    "",
	}, got)
}
