// Package resource builds the file artifacts a query job ships to the
// job-execution service: the SQL text itself and a generated wrapper script
// that runs it on the remote Spark engine and prints the result table.
package resource

import (
	"fmt"
	"time"
)

// MountRoot is where the service mounts a job's resource namespace inside
// the driver container. The wrapper script reads the SQL file from under
// this root, and job submission mounts the namespace at "/" to land it
// there, so both sides must agree on this constant.
const MountRoot = "/app/mount/"

// maxShownRows is passed to DataFrame.show so result output is effectively
// untruncated.
const maxShownRows = 1000000

// Resource is one named file owned by a single query job. It is immutable
// once built and is deleted with the job's namespace at run end.
type Resource struct {
	FileName string
	Content  []byte
	JobName  string

	// ReadsPath is set on wrapper resources only: the mounted path the
	// script opens at runtime. Submission validates it against the mount
	// convention.
	ReadsPath string
}

// MountPath returns the in-container path of a mounted resource file.
func MountPath(fileName string) string {
	return MountRoot + fileName
}

// NewSQLResource wraps raw SQL text as an uploadable file resource.
func NewSQLResource(jobName, sql string) Resource {
	return Resource{
		FileName: fmt.Sprintf("%s-%d.sql", jobName, time.Now().UnixMilli()),
		Content:  []byte(sql),
		JobName:  jobName,
	}
}

// NewWrapperResource generates the PySpark entry script for a query job.
// The script opens the mounted SQL resource, runs it against a Hive-enabled
// session and prints the full result table to stdout, which is where the
// driver log parser picks it up.
func NewWrapperResource(jobName string, sqlResource Resource) Resource {
	readsPath := MountPath(sqlResource.FileName)
	script := "import pyspark\n" +
		"from pyspark.sql import SparkSession\n" +
		fmt.Sprintf("spark=SparkSession.builder.appName('%s').enableHiveSupport().getOrCreate()\n", jobName) +
		fmt.Sprintf("sql=open('%s', 'r').read()\n", readsPath) +
		"df = spark.sql(sql)\n" +
		fmt.Sprintf("df.show(n=%d,truncate=False)\n", maxShownRows)

	return Resource{
		FileName:  fmt.Sprintf("%s-%d.py", jobName, time.Now().UnixMilli()),
		Content:   []byte(script),
		JobName:   jobName,
		ReadsPath: readsPath,
	}
}
