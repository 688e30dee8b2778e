package sqlassets

import _ "embed"

//go:embed central/tenants.sql
var TenantsSQL string

//go:embed central/simulation_sessions.sql
var SimulationSessionsSQL string

//go:embed central/activity_log.sql
var ActivityLogSQL string

//go:embed tenant/students.sql
var StudentsSQL string

//go:embed tenant/student_indexes.sql
var StudentIndexesSQL string
