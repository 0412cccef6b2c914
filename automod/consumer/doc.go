// Telegram update consumer and admin command handling for the automod engine.
package consumer
