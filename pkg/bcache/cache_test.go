package bcache

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestCreateAndOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	c, err := Create(path, 512, 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := c.TotalBlocks(); got != 10 {
		t.Fatalf("TotalBlocks = %d, want 10", got)
	}
	if got := c.BlockSize(); got != 512 {
		t.Fatalf("BlockSize = %d, want 512", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := Open(path, 512)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c2.Close()
	if got := c2.TotalBlocks(); got != 10 {
		t.Fatalf("reopened TotalBlocks = %d, want 10", got)
	}
}

func TestWriteBlockReadBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	c, err := Create(path, 512, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Close()

	want := bytes.Repeat([]byte{0xab}, 512)
	if err := c.WriteBlock(1, want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	got, err := c.ReadBlock(1)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadBlock returned %x, want %x", got, want)
	}

	// Neighboring blocks must be untouched.
	zero, err := c.ReadBlock(0)
	if err != nil {
		t.Fatalf("ReadBlock(0): %v", err)
	}
	if !bytes.Equal(zero, make([]byte, 512)) {
		t.Fatalf("block 0 was not zero after writing block 1")
	}
}

func TestWriteBlocksMultiBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	c, err := Create(path, 512, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Close()

	want := bytes.Repeat([]byte{0x42}, 512*2)
	if err := c.WriteBlocks(1, want); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	got, err := c.ReadBlocks(1, 2)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadBlocks mismatch")
	}
}

func TestReadWriteCluster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	c, err := Create(path, 512, 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Close()

	want := bytes.Repeat([]byte{0x5a}, 8*512)
	if err := c.WriteCluster(0, 8, want); err != nil {
		t.Fatalf("WriteCluster: %v", err)
	}
	got, err := c.ReadCluster(0, 8)
	if err != nil {
		t.Fatalf("ReadCluster: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadCluster mismatch")
	}
}

func TestOutOfRangeRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	c, err := Create(path, 512, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Close()

	if _, err := c.ReadBlocks(3, 2); err == nil {
		t.Fatalf("ReadBlocks past end of device should fail")
	}
	if err := c.WriteBlocks(4, make([]byte, 512)); err == nil {
		t.Fatalf("WriteBlocks at end of device should fail")
	}
	if err := c.WriteCluster(0, 8, make([]byte, 100)); err == nil {
		t.Fatalf("WriteCluster with wrong-sized buffer should fail")
	}
}

func TestOpenRejectsMisalignedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	c, err := Create(path, 512, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.Close()

	if _, err := Open(path, 300); err == nil {
		t.Fatalf("Open with a block size that doesn't evenly divide the file should fail")
	}
}
