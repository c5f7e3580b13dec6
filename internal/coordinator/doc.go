// Package coordinator polls one Baby Buddy server and keeps the latest
// record of every tracked type for every child.
//
// A pass fetches the children list, then the newest record of each endpoint
// for each child, installs the result as a new Snapshot and reconciles the
// entry's child devices:
//
//	c := coordinator.New(client, registry, coordinator.Options{
//	    EntryID:  "home",
//	    Interval: time.Minute,
//	})
//	if err := c.Setup(ctx); err != nil {
//	    // errors.Is(err, coordinator.ErrAuthFailed) is terminal
//	    // errors.Is(err, coordinator.ErrNotReady) should be retried
//	}
//	c.AddListener(func(s *coordinator.Snapshot) { ... })
//	c.Start(ctx)
//	defer c.Stop()
//
// One goroutine owns the timer; RequestRefresh and SetUpdateInterval signal
// it through buffered channels. Refresh may also be called directly and is
// serialised with the loop, so at most one pass runs at a time.
//
// A per-child fetch failure only drops that slot from the new snapshot. A
// rejected API key moves the coordinator to StateUnauthenticated, where it
// stays until Setup succeeds again.
package coordinator
