package transport

// chunks splits data into consecutive slices of at most size bytes. The
// slices share data's backing array.
func chunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}

	out := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		out = append(out, data[:size:size])
		data = data[size:]
	}
	return append(out, data)
}
