package storage

import "testing"

func TestMemoryContract(t *testing.T) {
	testStorageContract(t, NewMemory())
}
