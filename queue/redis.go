package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"buildhub/common/config"
	"buildhub/lib/logger"

	"github.com/redis/go-redis/v9"
)

/*
RedisStore keeps the shared queue state in redis so that several application
instances see one queue. Every mutation is a Lua script: scripts execute
atomically on the redis command loop, which gives the compare and swap
semantics the store contract requires.

Key layout (under the configured prefix):
  <p>:jobs        hash  job id -> job JSON
  <p>:ranks       hash  job id -> rank key
  <p>:pending     zset  rank key members, score 0 (lexicographic order)
  <p>:active      hash  participation id -> job id
  <p>:processing  hash  job id -> agent name
  <p>:agents      hash  agent name -> agent record JSON
  <p>:agentjobs:<agent>  set of in-flight job ids
*/
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg *config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
	}
}

// Ping verifies the connection; used by health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Agent heartbeats travel through cjson, whose numbers are doubles.
// Milliseconds stay well inside the exactly representable integer range.
type redisAgentRecord struct {
	Name               string   `json:"Name"`
	Capacity           int      `json:"Capacity"`
	Languages          []string `json:"Languages,omitempty"`
	Epoch              string   `json:"Epoch"`
	LastHeartbeatMilli int64    `json:"LastHeartbeatMilli"`
}

func (r *redisAgentRecord) toInfo() *AgentInfo {
	return &AgentInfo{
		Name:          r.Name,
		Capacity:      r.Capacity,
		Languages:     r.Languages,
		Epoch:         r.Epoch,
		LastHeartbeat: time.UnixMilli(r.LastHeartbeatMilli),
	}
}

// Script key order: 1 jobs, 2 ranks, 3 pending, 4 active, 5 processing, 6 agents.
func (s *RedisStore) scriptKeys() []string {
	return []string{
		s.prefix + ":jobs",
		s.prefix + ":ranks",
		s.prefix + ":pending",
		s.prefix + ":active",
		s.prefix + ":processing",
		s.prefix + ":agents",
	}
}

var enqueueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[4], ARGV[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[4])
redis.call('ZADD', KEYS[3], 0, ARGV[4])
redis.call('HSET', KEYS[4], ARGV[1], ARGV[2])
return 1
`)

func (s *RedisStore) Enqueue(ctx context.Context, job *BuildJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := enqueueScript.Run(ctx, s.client, s.scriptKeys(),
		participationField(job.ParticipationID), job.ID, payload, RankKey(job)).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrDuplicateJob
	}
	return nil
}

var dequeueScript = redis.NewScript(`
local ranks = redis.call('ZRANGE', KEYS[3], 0, -1)
for _, rank in ipairs(ranks) do
	local id = string.match(rank, '^%d+:%d+:(.+)$')
	local payload = id and redis.call('HGET', KEYS[1], id)
	if payload then
		local job = cjson.decode(payload)
		local lang = job['Build']['Language']
		local eligible = (lang == nil or lang == '')
		if not eligible then
			for i = 4, #ARGV do
				if ARGV[i] == lang then
					eligible = true
					break
				end
			end
		end
		if eligible then
			redis.call('ZREM', KEYS[3], rank)
			redis.call('HSET', KEYS[5], id, ARGV[1])
			redis.call('SADD', ARGV[3] .. ':agentjobs:' .. ARGV[1], id)
			local record = redis.call('HGET', KEYS[6], ARGV[1])
			local agent
			if record then
				agent = cjson.decode(record)
			else
				-- cjson encodes an empty table as an object, so the
				-- Languages array is only set when it has members
				agent = {Name = ARGV[1]}
				if #ARGV >= 4 then
					agent['Languages'] = {}
					for i = 4, #ARGV do
						table.insert(agent['Languages'], ARGV[i])
					end
				end
			end
			agent['LastHeartbeatMilli'] = tonumber(ARGV[2])
			redis.call('HSET', KEYS[6], ARGV[1], cjson.encode(agent))
			return payload
		end
	end
end
return false
`)

func (s *RedisStore) DequeueNext(ctx context.Context, agentName string, languages []string) (*BuildJob, error) {
	args := make([]interface{}, 0, len(languages)+3)
	args = append(args, agentName, time.Now().UnixMilli(), s.prefix)
	for _, language := range languages {
		args = append(args, language)
	}
	payload, err := dequeueScript.Run(ctx, s.client, s.scriptKeys(), args...).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalJob([]byte(payload))
}

var completeScript = redis.NewScript(`
local payload = redis.call('HGET', KEYS[1], ARGV[1])
if not payload then
	return false
end
local agent = redis.call('HGET', KEYS[5], ARGV[1])
if agent then
	redis.call('HDEL', KEYS[5], ARGV[1])
	redis.call('SREM', ARGV[2] .. ':agentjobs:' .. agent, ARGV[1])
end
local rank = redis.call('HGET', KEYS[2], ARGV[1])
if rank then
	redis.call('ZREM', KEYS[3], rank)
	redis.call('HDEL', KEYS[2], ARGV[1])
end
-- tostring would render large ids in exponent form and miss the hash field
local part = string.format('%.0f', cjson.decode(payload)['ParticipationID'])
if redis.call('HGET', KEYS[4], part) == ARGV[1] then
	redis.call('HDEL', KEYS[4], part)
end
redis.call('HDEL', KEYS[1], ARGV[1])
return payload
`)

func (s *RedisStore) Complete(ctx context.Context, jobID string) (*BuildJob, error) {
	payload, err := completeScript.Run(ctx, s.client, s.scriptKeys(), jobID, s.prefix).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalJob([]byte(payload))
}

var cancelScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[4], ARGV[1])
if not id then
	return 0
end
local agent = redis.call('HGET', KEYS[5], id)
if agent then
	redis.call('HDEL', KEYS[5], id)
	redis.call('SREM', ARGV[2] .. ':agentjobs:' .. agent, id)
end
local rank = redis.call('HGET', KEYS[2], id)
if rank then
	redis.call('ZREM', KEYS[3], rank)
	redis.call('HDEL', KEYS[2], id)
end
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[1], id)
return 1
`)

func (s *RedisStore) Cancel(ctx context.Context, participationID uint64) (bool, error) {
	removed, err := cancelScript.Run(ctx, s.client, s.scriptKeys(),
		participationField(participationID), s.prefix).Int()
	if err != nil {
		return false, err
	}
	return removed == 1, nil
}

var activeJobScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[4], ARGV[1])
if not id then
	return false
end
local payload = redis.call('HGET', KEYS[1], id)
if not payload then
	return false
end
local state = 'queued'
if redis.call('HEXISTS', KEYS[5], id) == 1 then
	state = 'building'
end
return {state, payload}
`)

func (s *RedisStore) activeJobFor(ctx context.Context, participationID uint64) (*BuildJob, string, error) {
	result, err := activeJobScript.Run(ctx, s.client, s.scriptKeys(),
		participationField(participationID)).Slice()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if len(result) != 2 {
		return nil, "", fmt.Errorf("unexpected active job reply of size %d", len(result))
	}
	state, _ := result[0].(string)
	payload, _ := result[1].(string)
	job, err := unmarshalJob([]byte(payload))
	if err != nil {
		return nil, "", err
	}
	return job, state, nil
}

func (s *RedisStore) QueuedJobFor(ctx context.Context, participationID uint64) (*BuildJob, error) {
	job, state, err := s.activeJobFor(ctx, participationID)
	if err != nil || state != "queued" {
		return nil, err
	}
	return job, nil
}

func (s *RedisStore) ProcessingJobFor(ctx context.Context, participationID uint64) (*BuildJob, error) {
	job, state, err := s.activeJobFor(ctx, participationID)
	if err != nil || state != "building" {
		return nil, err
	}
	return job, nil
}

var registerAgentScript = redis.NewScript(`
local payload = redis.call('HGET', KEYS[6], ARGV[1])
if payload and ARGV[3] ~= '' then
	local existing = cjson.decode(payload)
	if existing['Epoch'] and existing['Epoch'] > ARGV[3] then
		return 0
	end
end
redis.call('HSET', KEYS[6], ARGV[1], ARGV[2])
return 1
`)

func (s *RedisStore) RegisterAgent(ctx context.Context, info *AgentInfo) error {
	record := &redisAgentRecord{
		Name:      info.Name,
		Capacity:  info.Capacity,
		Languages: info.Languages,
		Epoch:     info.Epoch,
	}
	if info.LastHeartbeat.IsZero() {
		record.LastHeartbeatMilli = time.Now().UnixMilli()
	} else {
		record.LastHeartbeatMilli = info.LastHeartbeat.UnixMilli()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return registerAgentScript.Run(ctx, s.client, s.scriptKeys(),
		info.Name, payload, info.Epoch).Err()
}

var heartbeatScript = redis.NewScript(`
local payload = redis.call('HGET', KEYS[6], ARGV[1])
if not payload then
	return 0
end
local record = cjson.decode(payload)
record['LastHeartbeatMilli'] = tonumber(ARGV[2])
-- an empty language array would re-encode as an object
if type(record['Languages']) == 'table' and next(record['Languages']) == nil then
	record['Languages'] = nil
end
redis.call('HSET', KEYS[6], ARGV[1], cjson.encode(record))
return 1
`)

func (s *RedisStore) Heartbeat(ctx context.Context, agentName string) (bool, error) {
	found, err := heartbeatScript.Run(ctx, s.client, s.scriptKeys(),
		agentName, time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return found == 1, nil
}

var expireAgentsScript = redis.NewScript(`
local expiredAgents = {}
local requeuedJobs = {}
local agents = redis.call('HGETALL', KEYS[6])
for i = 1, #agents, 2 do
	local name = agents[i]
	local record = cjson.decode(agents[i + 1])
	local last = record['LastHeartbeatMilli'] or 0
	if tonumber(ARGV[1]) - last > tonumber(ARGV[2]) then
		local setKey = ARGV[3] .. ':agentjobs:' .. name
		for _, id in ipairs(redis.call('SMEMBERS', setKey)) do
			if redis.call('HDEL', KEYS[5], id) == 1 then
				local rank = redis.call('HGET', KEYS[2], id)
				if rank then
					redis.call('ZADD', KEYS[3], 0, rank)
				end
				table.insert(requeuedJobs, id)
			end
		end
		redis.call('DEL', setKey)
		redis.call('HDEL', KEYS[6], name)
		table.insert(expiredAgents, name)
	end
end
return {expiredAgents, requeuedJobs}
`)

func (s *RedisStore) ExpireAgents(ctx context.Context, window time.Duration) (*ExpiredAgents, error) {
	result, err := expireAgentsScript.Run(ctx, s.client, s.scriptKeys(),
		time.Now().UnixMilli(), window.Milliseconds(), s.prefix).Slice()
	if err != nil {
		return nil, err
	}
	expired := &ExpiredAgents{}
	if len(result) != 2 {
		return expired, nil
	}
	for _, name := range toStrings(result[0]) {
		expired.Agents = append(expired.Agents, name)
	}
	for _, id := range toStrings(result[1]) {
		expired.RequeuedJobIDs = append(expired.RequeuedJobIDs, id)
	}
	return expired, nil
}

func (s *RedisStore) UnregisterAgent(ctx context.Context, agentName string) error {
	// Deregistration requeues in-flight jobs the same way agent expiry does.
	_, err := expireOneAgent(ctx, s, agentName)
	return err
}

var unregisterAgentScript = redis.NewScript(`
if redis.call('HDEL', KEYS[6], ARGV[1]) == 0 then
	return {}
end
local requeuedJobs = {}
local setKey = ARGV[2] .. ':agentjobs:' .. ARGV[1]
for _, id in ipairs(redis.call('SMEMBERS', setKey)) do
	if redis.call('HDEL', KEYS[5], id) == 1 then
		local rank = redis.call('HGET', KEYS[2], id)
		if rank then
			redis.call('ZADD', KEYS[3], 0, rank)
		end
		table.insert(requeuedJobs, id)
	end
end
redis.call('DEL', setKey)
return requeuedJobs
`)

func expireOneAgent(ctx context.Context, s *RedisStore, agentName string) ([]string, error) {
	result, err := unregisterAgentScript.Run(ctx, s.client, s.scriptKeys(),
		agentName, s.prefix).Slice()
	if err != nil {
		return nil, err
	}
	var requeued []string
	for _, item := range result {
		if id, ok := item.(string); ok {
			requeued = append(requeued, id)
		}
	}
	return requeued, nil
}

func (s *RedisStore) ListAgents(ctx context.Context) ([]*AgentInfo, error) {
	records, err := s.client.HGetAll(ctx, s.prefix+":agents").Result()
	if err != nil {
		return nil, err
	}
	agents := make([]*AgentInfo, 0, len(records))
	for name, payload := range records {
		record := new(redisAgentRecord)
		if err := json.Unmarshal([]byte(payload), record); err != nil {
			logger.Warn("skipping malformed agent record %s: %v", name, err)
			continue
		}
		info := record.toInfo()
		jobs, err := s.client.SMembers(ctx, s.prefix+":agentjobs:"+name).Result()
		if err != nil {
			return nil, err
		}
		info.CurrentJobIDs = jobs
		agents = append(agents, info)
	}
	return agents, nil
}

func unmarshalJob(payload []byte) (*BuildJob, error) {
	job := new(BuildJob)
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, err
	}
	return job, nil
}

func toStrings(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

func participationField(participationID uint64) string {
	return fmt.Sprintf("%d", participationID)
}
