package middleware

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic гасит панику обработчика апдейта: один сломанный апдейт
// не должен останавливать polling. Работает только из defer.
func RecoverFromPanic(updateID int) {
	r := recover()
	if r == nil {
		return
	}
	log.WithFields(log.Fields{
		"update_id": updateID,
		"panic":     fmt.Sprint(r),
		"stack":     string(debug.Stack()),
	}).Error("Паника при обработке апдейта, апдейт пропущен")
}
