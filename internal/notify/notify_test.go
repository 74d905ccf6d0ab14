package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Run("notify assigns uuid and snackbar type", func(t *testing.T) {
		s := NewStore(0)
		id := s.Notify(StatusSuccess, "Plugin installed successfully!")

		_, err := uuid.Parse(id)
		require.NoError(t, err)

		list := s.List()
		require.Len(t, list, 1)
		assert.Equal(t, id, list[0].ID)
		assert.Equal(t, StatusSuccess, list[0].Status)
		assert.Equal(t, TypeSnackbar, list[0].Type)
	})

	t.Run("dismiss removes only the target", func(t *testing.T) {
		s := NewStore(0)
		a := s.Notify(StatusInfo, "a")
		b := s.Notify(StatusError, "b")

		s.Dismiss(a)
		s.Dismiss("unknown")

		list := s.List()
		require.Len(t, list, 1)
		assert.Equal(t, b, list[0].ID)
	})

	t.Run("limit keeps newest", func(t *testing.T) {
		s := NewStore(2)
		s.Notify(StatusInfo, "1")
		s.Notify(StatusInfo, "2")
		s.Notify(StatusInfo, "3")

		list := s.List()
		require.Len(t, list, 2)
		assert.Equal(t, "2", list[0].Message)
		assert.Equal(t, "3", list[1].Message)
	})

	t.Run("subscribers receive notices", func(t *testing.T) {
		s := NewStore(0)
		ch := s.Subscribe(1)
		s.Notify(StatusError, "Activation failed.")

		n := <-ch
		assert.Equal(t, "Activation failed.", n.Message)

		// full buffer drops instead of blocking
		s.Notify(StatusInfo, "x")
		s.Notify(StatusInfo, "y")
		assert.Len(t, s.List(), 3)
	})
}
