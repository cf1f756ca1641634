package opensearch

// keySpace builds cache keys under a shared prefix ("open_search" unless
// configured otherwise).
type keySpace struct{ prefix string }

func (k keySpace) board(boardID, tracker string) string {
	return k.prefix + "_board_" + boardID + "_" + tracker
}

func (k keySpace) item(magnetKey string) string {
	return k.prefix + "_m" + magnetKey
}
