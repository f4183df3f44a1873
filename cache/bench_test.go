package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkMemoryTier_Get_Hit(b *testing.B) {
	m := NewMemoryTier[string](MemoryOptions{})
	m.Set("key", "value", time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Get("key")
	}
}

func BenchmarkMemoryTier_Set_Evicting(b *testing.B) {
	m := NewMemoryTier[int](MemoryOptions{Capacity: 1000})
	keys := make([]string, 4096)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Set(keys[i%len(keys)], i, time.Hour)
	}
}

func BenchmarkStore_Get_Parallel(b *testing.B) {
	s := NewStore(StoreOptions[string]{Policy: DefaultPolicy()})
	ctx := context.Background()
	_ = s.Put(ctx, "key", "value", 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = s.Get(ctx, "key")
		}
	})
}

func BenchmarkNormalizeKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NormalizeKey("  Team:Borussia   Monchengladbach ")
	}
}
