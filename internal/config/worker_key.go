package config

type WorkerKeyStruct struct {
	AttendanceLogQueue string
}

var WorkerKey = &WorkerKeyStruct{
	AttendanceLogQueue: "attendance_log_queue",
}
