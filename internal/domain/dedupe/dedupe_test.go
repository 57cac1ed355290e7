package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/skincheck/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new memory cache", t, func() {
		c := dedupe.NewMemoryCache()

		Convey("When reserving an unknown key", func() {
			_, state := c.Reserve(ctx, "key-1")

			Convey("Then it should be fresh and counted", func() {
				So(state, ShouldEqual, dedupe.Fresh)
				So(c.Size(), ShouldEqual, 1)
			})

			Convey("And reserving it again before completion", func() {
				_, again := c.Reserve(ctx, "key-1")

				Convey("Then it should be pending", func() {
					So(again, ShouldEqual, dedupe.Pending)
					So(c.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When a reserved key completes", func() {
			c.Reserve(ctx, "key-1")
			c.Complete(ctx, "key-1", dedupe.Response{Status: 200, ContentType: "application/json", Body: []byte(`{"screen":"home"}`)})
			resp, state := c.Reserve(ctx, "key-1")

			Convey("Then later reservations should replay the response", func() {
				So(state, ShouldEqual, dedupe.Done)
				So(resp.Status, ShouldEqual, 200)
				So(string(resp.Body), ShouldEqual, `{"screen":"home"}`)
			})

			Convey("And releasing it should have no effect", func() {
				c.Release(ctx, "key-1")
				_, state := c.Reserve(ctx, "key-1")
				So(state, ShouldEqual, dedupe.Done)
			})
		})

		Convey("When a reservation is released", func() {
			c.Reserve(ctx, "key-1")
			c.Release(ctx, "key-1")

			Convey("Then the key should be fresh again", func() {
				So(c.Size(), ShouldEqual, 0)
				_, state := c.Reserve(ctx, "key-1")
				So(state, ShouldEqual, dedupe.Fresh)
			})
		})

		Convey("When completing an unknown key", func() {
			c.Complete(ctx, "ghost", dedupe.Response{Status: 200})

			Convey("Then nothing should be stored", func() {
				So(c.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded cache", t, func() {
		c := dedupe.NewMemoryCache(dedupe.WithMaxSize(2))

		Convey("When a third key arrives", func() {
			for i := 1; i <= 3; i++ {
				key := fmt.Sprintf("key-%d", i)
				c.Reserve(ctx, key)
				c.Complete(ctx, key, dedupe.Response{Status: 200 + i})
			}

			Convey("Then the oldest key should be evicted", func() {
				So(c.Size(), ShouldEqual, 2)
				_, state := c.Reserve(ctx, "key-1")
				So(state, ShouldEqual, dedupe.Fresh)
				resp, state := c.Reserve(ctx, "key-3")
				So(state, ShouldEqual, dedupe.Done)
				So(resp.Status, ShouldEqual, 203)
			})
		})

		Convey("When a replayed key is used again before a new key arrives", func() {
			for _, key := range []string{"a", "b"} {
				c.Reserve(ctx, key)
				c.Complete(ctx, key, dedupe.Response{Status: 200})
			}
			_, replay := c.Reserve(ctx, "a")
			So(replay, ShouldEqual, dedupe.Done)
			c.Reserve(ctx, "c")

			Convey("Then the least recently used key should be evicted instead", func() {
				So(c.Size(), ShouldEqual, 2)
				_, state := c.Reserve(ctx, "a")
				So(state, ShouldEqual, dedupe.Done)
				_, state = c.Reserve(ctx, "b")
				So(state, ShouldEqual, dedupe.Fresh)
			})
		})

		Convey("When the newest key is released before eviction", func() {
			c.Reserve(ctx, "a")
			c.Reserve(ctx, "b")
			c.Release(ctx, "b")
			c.Reserve(ctx, "c")
			c.Reserve(ctx, "d")

			Convey("Then eviction should still drop the oldest key", func() {
				So(c.Size(), ShouldEqual, 2)
				_, state := c.Reserve(ctx, "c")
				So(state, ShouldEqual, dedupe.Pending)
			})
		})

		Convey("When releasing a key from the middle of the list", func() {
			c.Reserve(ctx, "a")
			c.Reserve(ctx, "b")
			c.Release(ctx, "a")

			Convey("Then the remaining key should stay reachable", func() {
				So(c.Size(), ShouldEqual, 1)
				_, state := c.Reserve(ctx, "b")
				So(state, ShouldEqual, dedupe.Pending)
			})
		})
	})

	Convey("Given an unbounded cache", t, func() {
		c := dedupe.NewMemoryCache(dedupe.WithMaxSize(0))

		Convey("When many keys are reserved", func() {
			for i := 0; i < 5000; i++ {
				c.Reserve(ctx, fmt.Sprintf("key-%d", i))
			}

			Convey("Then none should be evicted", func() {
				So(c.Size(), ShouldEqual, 5000)
			})
		})
	})
}

func TestMemoryCacheConcurrency(t *testing.T) {
	Convey("Given a cache shared by goroutines", t, func() {
		ctx := context.Background()
		c := dedupe.NewMemoryCache(dedupe.WithMaxSize(10_000))

		Convey("When many goroutines race for the same key", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, state := c.Reserve(ctx, "shared"); state == dedupe.Fresh {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one should win the reservation", func() {
				So(fresh, ShouldEqual, 1)
				So(c.Size(), ShouldEqual, 1)
			})
		})
	})
}
