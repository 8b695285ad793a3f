package messenger

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"fb-promo-bot/internal/domain"
)

const graphTimeLayout = "2006-01-02T15:04:05-0700"

type conversationsPage struct {
	Data []struct {
		ID          string `json:"id"`
		UpdatedTime string `json:"updated_time"`
		Messages    struct {
			Data []struct {
				CreatedTime string `json:"created_time"`
				From        struct {
					ID string `json:"id"`
				} `json:"from"`
			} `json:"data"`
		} `json:"messages"`
		Participants struct {
			Data []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"data"`
		} `json:"participants"`
	} `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// PageID возвращает идентификатор страницы, от имени которой работает токен.
func (c *Client) PageID(ctx context.Context) (string, error) {
	var me struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "GET", "/me", url.Values{"fields": {"id"}}, nil, &me, "me"); err != nil {
		return "", err
	}
	return me.ID, nil
}

// ListParticipants обходит все страницы /me/conversations и передаёт в fn
// собеседников страницы. Активностью считается время последнего сообщения,
// если его написал сам собеседник; updated_time беседы двигают и наши отправки,
// поэтому он не используется. Без такого сообщения LastActive остаётся 0.
func (c *Client) ListParticipants(ctx context.Context, pageID string, pageSize int, fn func([]domain.User) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	query := url.Values{
		"fields":   {"participants,updated_time,messages.limit(1){from,created_time}"},
		"platform": {"messenger"},
		"limit":    {strconv.Itoa(pageSize)},
	}
	for {
		var page conversationsPage
		if err := c.do(ctx, "GET", "/me/conversations", query, nil, &page, "conversations"); err != nil {
			return fmt.Errorf("страница бесед: %w", err)
		}
		users := make([]domain.User, 0, len(page.Data))
		for _, conv := range page.Data {
			var lastFrom string
			var lastAt int64
			if len(conv.Messages.Data) > 0 {
				last := conv.Messages.Data[0]
				lastFrom = last.From.ID
				if ts, err := time.Parse(graphTimeLayout, last.CreatedTime); err == nil {
					lastAt = domain.ToMillis(ts)
				}
			}
			for _, p := range conv.Participants.Data {
				if p.ID == "" || p.ID == pageID {
					continue
				}
				u := domain.User{ID: p.ID, Name: p.Name}
				if lastFrom == p.ID {
					u.LastActive = lastAt
				}
				users = append(users, u)
			}
		}
		if len(users) > 0 {
			if err := fn(users); err != nil {
				return err
			}
		}
		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			return nil
		}
		query.Set("after", page.Paging.Cursors.After)
	}
}
