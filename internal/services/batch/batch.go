// Package batch задаёт общий для всех джобов способ обхода пачки:
// строго последовательно, с паузой между элементами (щадим внешние API)
// и изоляцией ошибок — упавший элемент не валит остальные.
package batch

import (
	"context"
	"time"
)

type ItemError struct {
	Ref string
	Err error
}

type Runner struct {
	delay time.Duration
}

func New(delay time.Duration) *Runner {
	if delay < 0 {
		delay = 0
	}
	return &Runner{delay: delay}
}

// Run обрабатывает n элементов по одному. Ошибка элемента записывается и обход
// продолжается; отмена контекста останавливает обход между элементами.
// Возвращает собранные ошибки и ошибку контекста, если обход прерван.
func (r *Runner) Run(ctx context.Context, n int, ref func(i int) string, fn func(ctx context.Context, i int) error) ([]ItemError, error) {
	var errs []ItemError
	for i := 0; i < n; i++ {
		if i > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
				return errs, ctx.Err()
			case <-time.After(r.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return errs, err
		}
		if err := fn(ctx, i); err != nil {
			errs = append(errs, ItemError{Ref: ref(i), Err: err})
		}
	}
	return errs, nil
}
