package cmn

import "github.com/golang/glog"

// Leveled logging thin wrapper, matching the granularity the teacher
// applies its own vendored glog fork at: Infoln/Warningln for expected
// conditions, Errorln for failures that should page someone.

func Infof(format string, a ...interface{})    { glog.Infof(format, a...) }
func Warningf(format string, a ...interface{}) { glog.Warningf(format, a...) }

func Infoln(a ...interface{})    { glog.Infoln(a...) }
func Warningln(a ...interface{}) { glog.Warningln(a...) }
func Errorln(a ...interface{})   { glog.Errorln(a...) }

// Flush should be called before process exit so buffered log lines are
// not lost.
func Flush() { glog.Flush() }
