package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "residency/pkg/domain"
)

func TestAccessorsDefaultToZero(t *testing.T) {
	ctx := context.Background()
	assert.True(t, UserID(ctx).IsNil())
	assert.Empty(t, RequestID(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user := id.UserID(uuid.New())

	ctx := WithTime(context.Background(), fixed)
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithUserID(ctx, user)

	assert.Equal(t, fixed, Now(ctx))
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, user, UserID(ctx))
}
