package store

import (
	"encoding/json"

	"github.com/luxfi/validation/errs"
)

// Topic is a named channel peers subscribe to, per SPEC_FULL.md §3.
type Topic struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ValidatedContent is the immutable outcome record of a closed votation.
type ValidatedContent struct {
	IDVotation string `json:"id_votation"`
	Content    string `json:"content"`
	Approved   string `json:"approved"`
}

// PutTopic records topic in the topics/ namespace. Re-registering an
// existing topic overwrites its description.
func PutTopic(w Writer, topic Topic) error {
	data, err := json.Marshal(topic)
	if err != nil {
		return errs.Runtime("store: marshal topic %s: %s", topic.Name, err)
	}
	if err := w.Put(TopicKey(topic.Name), data); err != nil {
		return err
	}
	return nil
}

// GetTopic reads back one registered topic.
func GetTopic(r Reader, name string) (Topic, error) {
	data, err := r.Get(TopicKey(name))
	if err != nil {
		return Topic{}, err
	}
	var topic Topic
	if err := json.Unmarshal(data, &topic); err != nil {
		return Topic{}, errs.Deserialization(err, "store: unmarshal topic "+name)
	}
	return topic, nil
}

// ListTopics enumerates every registered topic.
func ListTopics(r Reader) ([]Topic, error) {
	var topics []Topic
	err := r.ScanPrefix(TopicsPrefix(), func(_ string, value []byte) (bool, error) {
		var topic Topic
		if err := json.Unmarshal(value, &topic); err != nil {
			return false, errs.Deserialization(err, "store: unmarshal topic entry")
		}
		topics = append(topics, topic)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}

// PutValidatedContent records the terminal outcome for idVotation,
// overwriting any prior record. Callers that need idempotent,
// create-once semantics should use CreateOnce(ContentKey(id), ...) directly
// and treat ErrAlreadyExists as "already recorded".
func PutValidatedContent(w Writer, content ValidatedContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return errs.Runtime("store: marshal content %s: %s", content.IDVotation, err)
	}
	return w.Put(ContentKey(content.IDVotation), data)
}

// GetValidatedContent reads back one terminal outcome record.
func GetValidatedContent(r Reader, idVotation string) (ValidatedContent, error) {
	data, err := r.Get(ContentKey(idVotation))
	if err != nil {
		return ValidatedContent{}, err
	}
	var content ValidatedContent
	if err := json.Unmarshal(data, &content); err != nil {
		return ValidatedContent{}, errs.Deserialization(err, "store: unmarshal content "+idVotation)
	}
	return content, nil
}

// ListValidatedContent enumerates the entire validated-content log.
func ListValidatedContent(r Reader) ([]ValidatedContent, error) {
	var all []ValidatedContent
	err := r.ScanPrefix(ContentPrefix(), func(_ string, value []byte) (bool, error) {
		var content ValidatedContent
		if err := json.Unmarshal(value, &content); err != nil {
			return false, errs.Deserialization(err, "store: unmarshal content entry")
		}
		all = append(all, content)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
