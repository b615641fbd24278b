package db

import (
	"context"
	"fmt"

	"github.com/bidverse/bidverse/internal/models"
)

// CreateNotification inserts a notification record
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO notifications (receiver_id, sender_id, auction_id, title, message)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		n.ReceiverID, n.SenderID, n.AuctionID, n.Title, n.Message).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// NotificationsForUser retrieves a user's notifications, newest first
func (s *Store) NotificationsForUser(ctx context.Context, userID int) ([]models.Notification, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, receiver_id, sender_id, auction_id, title, message, created_at, opened
		 FROM notifications WHERE receiver_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.ReceiverID, &n.SenderID, &n.AuctionID,
			&n.Title, &n.Message, &n.CreatedAt, &n.Opened); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationOpened flags a notification as read, checking ownership.
func (s *Store) MarkNotificationOpened(ctx context.Context, id, userID int) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE notifications SET opened = TRUE WHERE id = $1 AND receiver_id = $2",
		id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification opened: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification not found or not owned by user")
	}
	return nil
}
