package export

import (
	"bytes"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chaos-io/removebg/task"
)

func completeTask(t *testing.T, store *task.Store, name string) int {
	t.Helper()
	id := store.Allocate("blob:x", name)
	tk, err := store.Get(id)
	require.NoError(t, err)

	canvas, err := tk.Surface.Transfer()
	require.NoError(t, err)
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(1, 1, color.NRGBA{R: 9, G: 8, B: 7, A: 128})
	require.NoError(t, canvas.Draw(img))
	require.NoError(t, tk.Surface.Reclaim())

	for _, u := range []task.Update{
		{Status: task.StatusDispatched},
		{Status: task.StatusProcessing},
		{Status: task.StatusComplete, Result: &task.Result{Time: time.Second}},
	} {
		_, err := store.Update(id, u)
		require.NoError(t, err)
	}
	return id
}

func TestEncoder_EncodeIsMemoized(t *testing.T) {
	store := task.NewStore(zaptest.NewLogger(t))
	id := completeTask(t, store, "a.png")
	enc := NewEncoder(store)

	first, err := enc.Encode(id)
	require.NoError(t, err)
	second, err := enc.Encode(id)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Same(t, &first[0], &second[0], "second call returns the cached bytes")
	assert.Equal(t, 1, enc.Cached())

	decoded, err := imaging.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), decoded.Bounds())
	_, _, _, a := decoded.At(1, 1).RGBA()
	assert.Equal(t, uint32(128*0x101), a)
}

func TestEncoder_ConcurrentCallsShareResult(t *testing.T) {
	store := task.NewStore(zaptest.NewLogger(t))
	id := completeTask(t, store, "a.png")
	enc := NewEncoder(store)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := enc.Encode(id)
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, enc.Cached())
}

func TestEncoder_RejectsUnfinishedTasks(t *testing.T) {
	store := task.NewStore(zaptest.NewLogger(t))
	pending := store.Allocate("blob:x", "a.png")

	failed := store.Allocate("blob:y", "b.png")
	for _, u := range []task.Update{
		{Status: task.StatusDispatched},
		{Status: task.StatusProcessing},
		{Status: task.StatusError, Err: &task.Error{Name: "InferenceError", Message: "boom"}},
	} {
		_, err := store.Update(failed, u)
		require.NoError(t, err)
	}

	enc := NewEncoder(store)
	_, err := enc.Encode(pending)
	assert.ErrorIs(t, err, ErrNotComplete)
	_, err = enc.Encode(failed)
	assert.ErrorIs(t, err, ErrNotComplete)
	_, err = enc.Encode(42)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
	assert.Zero(t, enc.Cached())
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "cat.png", want: "removebg-cat.png"},
		{in: "cat.jpg", want: "removebg-cat.jpg.png"},
		{in: "CAT.PNG", want: "removebg-CAT.PNG"},
		{in: "example.com/img/cat", want: "removebg-example.com_img_cat.png"},
		{in: "", want: "removebg.png"},
		{in: "  ", want: "removebg.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.in), tt.in)
	}
}
