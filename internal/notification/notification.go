/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/stkpush/config"
	"github.com/blnkfinance/stkpush/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func slackPayload(project string, err error, at time.Time) slackMessage {
	if project == "" {
		project = "STK Push"
	}
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Error From %s 🐞", project), Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Error:*\n" + err.Error()}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Time:*\n" + at.Format(time.RFC822)}}},
	}}
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(err error) {
	conf, cErr := config.Fetch()
	if cErr != nil {
		logrus.Error(cErr)
		return
	}

	payload, pErr := request.ToJsonReq(slackPayload(conf.ProjectName, err, time.Now()))
	if pErr != nil {
		logrus.Error(pErr)
		return
	}

	req, rErr := http.NewRequest(http.MethodPost, conf.Notification.Slack.WebhookUrl, payload)
	if rErr != nil {
		logrus.Error(rErr)
		return
	}

	// Slack answers with plain "ok"; only transport failures matter.
	var response interface{}
	resp, callErr := request.Call(req, &response)
	if resp == nil && callErr != nil {
		logrus.WithError(callErr).Error("slack notification failed")
	}
}

// NotifyError logs systemError and, when a Slack webhook is configured, forwards it
// there. It never blocks the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}
