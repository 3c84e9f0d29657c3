package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func BenchmarkErrorCollector_Add(b *testing.B) {
	collector := NewErrorCollector()
	cause := stderrors.New("Invalid CSS")

	b.ResetTimer()
	for i := range b.N {
		collector.Add(NewTransformError("styles", fmt.Sprintf("file%d.scss", i), cause).At(i, i%80))
	}
}

func BenchmarkErrorCollector_Errors(b *testing.B) {
	collector := NewErrorCollector()
	cause := stderrors.New("Invalid CSS")
	for i := range 1000 {
		collector.Add(NewTransformError("styles", fmt.Sprintf("file%d.scss", i), cause))
	}

	b.ResetTimer()
	for range b.N {
		_ = collector.Errors()
	}
}

func BenchmarkErrorCollector_ByTask(b *testing.B) {
	collector := NewErrorCollector()
	cause := stderrors.New("unexpected token")
	for i := range 1000 {
		task := []string{"styles", "scripts", "views"}[i%3]
		collector.Add(NewTransformError(task, fmt.Sprintf("file%d", i), cause))
	}

	b.ResetTimer()
	for range b.N {
		_ = collector.ByTask()
	}
}

func BenchmarkLocate(b *testing.B) {
	msg := `template: index.pug:4:12: executing "index.pug" at <.Title>: can't evaluate field Title`
	for range b.N {
		_, _, _ = Locate(msg)
	}
}
