package bcache

import "testing"

func TestInitLRULinksAllBuffers(t *testing.T) {
	c, err := New(Config{N: 5, HashSize: 7}, nopDevice{})
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for idx := c.lruHead; idx != none; idx = c.bufs[idx].lruNext {
		count++
	}
	if count != 5 {
		t.Fatalf("expected 5 linked buffers, walked %d", count)
	}
	if c.bufs[c.lruTail].lruNext != none {
		t.Fatalf("tail must terminate the list")
	}
	if c.bufs[c.lruHead].lruPrev != none {
		t.Fatalf("head must terminate the list")
	}
}

func TestMoveToFrontReordersList(t *testing.T) {
	c, err := New(Config{N: 3, HashSize: 7}, nopDevice{})
	if err != nil {
		t.Fatal(err)
	}
	tail := c.lruTail
	c.moveToFront(tail)
	if c.lruHead != tail {
		t.Fatalf("expected %d to become head, got %d", tail, c.lruHead)
	}
	if c.bufs[tail].lruPrev != none {
		t.Fatalf("new head must have no prev")
	}
}

func TestScanForVictimSkipsBusy(t *testing.T) {
	c, err := New(Config{N: 2, HashSize: 7}, nopDevice{})
	if err != nil {
		t.Fatal(err)
	}
	// Mark the LRU-end buffer busy; scan should skip to the other one.
	c.bufs[c.lruTail].flags |= flagBusy
	victim := c.scanForVictim(0, 0, false)
	if victim != c.lruHead {
		t.Fatalf("expected scan to fall back to %d, got %d", c.lruHead, victim)
	}
}

func TestScanForVictimInodeFilter(t *testing.T) {
	c, err := New(Config{N: 3, HashSize: 7}, nopDevice{})
	if err != nil {
		t.Fatal(err)
	}
	c.bufs[0].dev, c.bufs[0].inum = 1, 42
	c.bufs[1].dev, c.bufs[1].inum = 1, 99
	c.bufs[2].dev, c.bufs[2].inum = 1, 42

	victim := c.scanForVictim(1, 42, true)
	if victim != 2 && victim != 0 {
		t.Fatalf("expected a buffer owned by inode 42, got %d", victim)
	}
	if c.bufs[victim].inum != 42 {
		t.Fatalf("filtered scan returned a buffer from the wrong inode: %d", victim)
	}
}

func TestCountBlocks(t *testing.T) {
	c, err := New(Config{N: 4, HashSize: 7}, nopDevice{})
	if err != nil {
		t.Fatal(err)
	}
	c.bufs[0].dev, c.bufs[0].inum = 1, 7
	c.bufs[1].dev, c.bufs[1].inum = 1, 7
	c.bufs[2].dev, c.bufs[2].inum = 2, 7
	if got := c.countBlocks(1, 7); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
