package record

import "github.com/deepstream-client/go-deepstream/config"

// MergeStrategy resolves a VERSION_EXISTS conflict: the local write was
// rejected because remoteVersion/remoteData had already superseded
// localVersion by the time the server processed the update. It returns
// the resolved data and the version it is based on; the engine stores the
// data and resends it as that version plus one.
type MergeStrategy func(recordName string, remoteData interface{}, remoteVersion int, localData interface{}, localVersion int) (data interface{}, version int)

// RemoteWins is the MergeStrategy behind config.MergeRemoteWins: the
// server's version is kept, the local write is discarded.
func RemoteWins(_ string, remoteData interface{}, remoteVersion int, _ interface{}, _ int) (interface{}, int) {
	return remoteData, remoteVersion
}

// LocalWins is the MergeStrategy behind config.MergeLocalWins: the local
// write is retried on top of the server's version number so it is no
// longer stale.
func LocalWins(_ string, _ interface{}, remoteVersion int, localData interface{}, _ int) (interface{}, int) {
	return localData, remoteVersion
}

func strategyFor(name config.MergeStrategyName) MergeStrategy {
	switch name {
	case config.MergeLocalWins:
		return LocalWins
	default:
		return RemoteWins
	}
}
