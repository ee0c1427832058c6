package config

type WorkerKeyStruct struct {
	PersistAntiCheatQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAntiCheatQueue: "persist_anticheat_queue",
}
