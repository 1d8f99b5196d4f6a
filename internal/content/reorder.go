package content

import "slices"

// Reorder returns a new slice with the block at from moved to to. Blocks in
// between shift by one position. The input slice is left untouched. Drag
// gestures call it repeatedly with the block's live index.
func Reorder(blocks []Block, from, to int) ([]Block, error) {
	if from < 0 || from >= len(blocks) || to < 0 || to >= len(blocks) {
		return blocks, ErrIndexOutOfRange
	}
	if from == to {
		return slices.Clone(blocks), nil
	}
	moved := blocks[from]
	remaining := slices.Delete(slices.Clone(blocks), from, from+1)
	return slices.Insert(remaining, to, moved), nil
}
